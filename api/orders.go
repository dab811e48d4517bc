package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/service/orders"
	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service orders.OrderUseCase
}

type orderLineRequest struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type createOrderRequest struct {
	Items         []orderLineRequest `json:"items"`
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email"`
}

type updateItemRequest struct {
	Qty int `json:"qty"`
}

type orderItemResponse struct {
	ID        int64  `json:"id"`
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	PriceAt   int64  `json:"price_at"`
	LineTotal int64  `json:"line_total"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	Status        string              `json:"status"`
	CustomerName  string              `json:"customer_name,omitempty"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	TotalAmount   int64               `json:"total_amount"`
	CreatedAt     string              `json:"created_at"`
	PaidAt        string              `json:"paid_at,omitempty"`
	Items         []orderItemResponse `json:"items"`
}

type donationResponse struct {
	ID        int64  `json:"id"`
	DonorName string `json:"donor_name,omitempty"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func NewOrderHandler(service orders.OrderUseCase) *OrderHandler {
	return &OrderHandler{service: service}
}

func (h *OrderHandler) Register(router *gin.RouterGroup) {
	router.POST("/orders", h.create)
	router.GET("/orders/:id", h.get)
	router.POST("/orders/:id/items", h.addItem)
	router.PATCH("/orders/:id/items/:item_id", h.updateItem)
	router.DELETE("/orders/:id/items/:item_id", h.removeItem)
	router.GET("/donations", h.listDonations)
}

func (h *OrderHandler) create(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	checkout := orders.Checkout{CustomerName: req.CustomerName, CustomerEmail: req.CustomerEmail}
	for _, it := range req.Items {
		checkout.Items = append(checkout.Items, orders.Line{SKU: it.SKU, Qty: it.Qty})
	}

	order, err := h.service.CreateOrder(c.Request.Context(), checkout)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) addItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req orderLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	order, err := h.service.AddItem(c.Request.Context(), id, orders.Line{SKU: req.SKU, Qty: req.Qty})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) updateItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "item_id")
	if !ok {
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	order, err := h.service.UpdateItemQty(c.Request.Context(), id, itemID, req.Qty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) removeItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "item_id")
	if !ok {
		return
	}
	order, err := h.service.RemoveItem(c.Request.Context(), id, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) listDonations(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "invalid limit", err)
			return
		}
		limit = n
	}
	donations, err := h.service.ListDonations(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]donationResponse, 0, len(donations))
	for _, d := range donations {
		out = append(out, donationResponse{
			ID:        d.ID,
			DonorName: d.DonorName,
			Amount:    d.Amount,
			Status:    string(d.Status),
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		TotalAmount:   o.TotalAmount,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
		Items:         make([]orderItemResponse, 0, len(o.Items)),
	}
	if o.PaidAt != nil {
		resp.PaidAt = o.PaidAt.Format(time.RFC3339)
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:        it.ID,
			SKU:       it.SKU,
			Qty:       it.Qty,
			PriceAt:   it.PriceAt,
			LineTotal: it.LineTotal,
		})
	}
	return resp
}
