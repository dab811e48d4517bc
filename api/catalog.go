package api

import (
	"net/http"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	service catalog.CatalogUseCase
}

type productResponse struct {
	ID    int64  `json:"id"`
	SKU   string `json:"sku"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

func NewCatalogHandler(service catalog.CatalogUseCase) *CatalogHandler {
	return &CatalogHandler{service: service}
}

func (h *CatalogHandler) Register(router *gin.RouterGroup) {
	router.GET("/products", h.list)
	router.GET("/products/:sku", h.get)
}

func (h *CatalogHandler) list(c *gin.Context) {
	products, err := h.service.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) get(c *gin.Context) {
	product, err := h.service.GetProductBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(*product))
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{ID: p.ID, SKU: p.SKU, Name: p.Name, Price: p.Price, Stock: p.Stock}
}
