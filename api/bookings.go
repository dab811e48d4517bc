package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type claimSlotRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

type updateBookingRequest struct {
	Status string `json:"status"`
}

type serviceResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

type slotResponse struct {
	ID        int64  `json:"id"`
	ServiceID int64  `json:"service_id"`
	StartsAt  string `json:"starts_at"`
	EndsAt    string `json:"ends_at"`
}

type bookingResponse struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	SlotID        int64  `json:"slot_id"`
	StartsAt      string `json:"starts_at,omitempty"`
	EndsAt        string `json:"ends_at,omitempty"`
	ServiceID     int64  `json:"service_id,omitempty"`
	ServiceName   string `json:"service_name,omitempty"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CreatedAt     string `json:"created_at"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.GET("/services", h.listServices)
	router.GET("/services/:id/slots", h.listSlots)
	router.POST("/slots/:id/claim", h.claim)
	router.GET("/bookings/:id", h.get)
	router.PATCH("/bookings/:id", h.updateStatus)
}

func (h *BookingHandler) listServices(c *gin.Context) {
	services, err := h.service.ListServices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		out = append(out, serviceResponse{
			ID:              s.ID,
			Name:            s.Name,
			Slug:            s.Slug,
			DurationMinutes: s.DurationMinutes,
			Price:           s.Price,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) listSlots(c *gin.Context) {
	serviceID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	from, ok := parseTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseTimeQuery(c, "to")
	if !ok {
		return
	}

	slots, err := h.service.ListAvailableSlots(c.Request.Context(), serviceID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			ID:        s.ID,
			ServiceID: s.ServiceID,
			StartsAt:  s.StartsAt.Format(time.RFC3339),
			EndsAt:    s.EndsAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) claim(c *gin.Context) {
	slotID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req claimSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	b, err := h.service.ClaimSlot(c.Request.Context(), slotID, domain.Customer{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Notes: req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) updateStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	b, err := h.service.UpdateBookingStatus(c.Request.Context(), id, domain.BookingStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func parseTimeQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badRequest(c, "invalid "+name+", expected RFC3339", err)
		return time.Time{}, false
	}
	return t, true
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:            b.ID,
		Status:        string(b.Status),
		SlotID:        b.SlotID,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
	}
	if b.Slot != nil {
		resp.StartsAt = b.Slot.StartsAt.Format(time.RFC3339)
		resp.EndsAt = b.Slot.EndsAt.Format(time.RFC3339)
	}
	if b.Service != nil {
		resp.ServiceID = b.Service.ID
		resp.ServiceName = b.Service.Name
	}
	return resp
}
