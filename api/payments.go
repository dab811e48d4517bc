package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/service/payments"
	"github.com/gin-gonic/gin"
)

// Form fields Webpay posts back to the return URL.
const (
	fieldToken         = "token_ws"
	fieldAbortToken    = "TBK_TOKEN"
	fieldAbortBuyOrder = "TBK_ORDEN_COMPRA"
)

type PaymentHandler struct {
	service payments.PaymentUseCase
}

type createPaymentRequest struct {
	OrderID     int64  `json:"order_id"`
	BookingID   int64  `json:"booking_id"`
	DonationID  int64  `json:"donation_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	DonorName   string `json:"donor_name"`
	DonorEmail  string `json:"donor_email"`
}

type checkoutResponse struct {
	IntentID    string `json:"intent_id"`
	BuyOrder    string `json:"buy_order"`
	Token       string `json:"token"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	RedirectURL string `json:"redirect_url"`
}

type paymentResponse struct {
	ID                     string `json:"id"`
	BuyOrder               string `json:"buy_order"`
	Reference              string `json:"reference"`
	Amount                 int64  `json:"amount"`
	Currency               string `json:"currency"`
	Status                 string `json:"status"`
	Description            string `json:"description,omitempty"`
	AuthorizationCode      string `json:"authorization_code,omitempty"`
	CardLast4              string `json:"card_last4,omitempty"`
	TransactionDate        string `json:"transaction_date,omitempty"`
	FailureReason          string `json:"failure_reason,omitempty"`
	ReconciliationRequired bool   `json:"reconciliation_required,omitempty"`
	CreatedAt              string `json:"created_at"`
	UpdatedAt              string `json:"updated_at"`
}

type confirmationResponse struct {
	OK       bool   `json:"ok"`
	BuyOrder string `json:"buy_order"`
	Status   string `json:"status"`
	IntentID string `json:"intent_id"`
}

func NewPaymentHandler(service payments.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/payments", h.create)
	router.GET("/payments/return", h.handleReturn)
	router.POST("/payments/return", h.handleReturn)
	router.GET("/payments/:id", h.get)
}

func (h *PaymentHandler) create(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	ref, err := req.reference()
	if err != nil {
		badRequest(c, err.Error(), err)
		return
	}

	checkout, err := h.service.CreatePayment(c.Request.Context(), payments.CreatePaymentInput{
		Reference:   ref,
		Amount:      req.Amount,
		Description: req.Description,
		DonorName:   req.DonorName,
		DonorEmail:  req.DonorEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, checkoutResponse{
		IntentID:    checkout.IntentID,
		BuyOrder:    checkout.BuyOrder,
		Token:       checkout.Token,
		Amount:      checkout.Amount,
		Currency:    checkout.Currency,
		RedirectURL: checkout.RedirectURL,
	})
}

// reference returns nil for a bare amount, which the service turns into a
// donation.
func (r createPaymentRequest) reference() (domain.Reference, error) {
	var refs []domain.Reference
	if r.OrderID != 0 {
		refs = append(refs, domain.OrderRef{OrderID: r.OrderID})
	}
	if r.BookingID != 0 {
		refs = append(refs, domain.BookingRef{BookingID: r.BookingID})
	}
	if r.DonationID != 0 {
		refs = append(refs, domain.DonationRef{DonationID: r.DonationID})
	}
	switch len(refs) {
	case 0:
		return nil, nil
	case 1:
		if r.Amount != 0 {
			return nil, errAmountWithReference
		}
		return domain.NewReference(refs[0].Kind(), refs[0].ID())
	}
	return nil, errManyReferences
}

func (h *PaymentHandler) get(c *gin.Context) {
	intent, err := h.service.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(intent))
}

// handleReturn is where the payer's browser lands after the gateway. A
// token_ws alone means the payment form was completed and must be confirmed;
// TBK_TOKEN or a lone TBK_ORDEN_COMPRA mean it was abandoned.
func (h *PaymentHandler) handleReturn(c *gin.Context) {
	token := formValue(c, fieldToken)
	abortToken := formValue(c, fieldAbortToken)
	abortBuyOrder := formValue(c, fieldAbortBuyOrder)

	switch {
	case abortToken != "" || (token == "" && abortBuyOrder != ""):
		intent, err := h.service.AbortPayment(c.Request.Context(), payments.AbortInput{Token: abortToken, BuyOrder: abortBuyOrder})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, confirmationResponse{
			OK:       intent.Status == domain.PaymentStatusAuthorized,
			BuyOrder: intent.BuyOrder,
			Status:   string(intent.Status),
			IntentID: intent.ID,
		})
	case token != "":
		conf, err := h.service.ConfirmPayment(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, confirmationResponse{
			OK:       conf.OK,
			BuyOrder: conf.BuyOrder,
			Status:   string(conf.Status),
			IntentID: conf.Intent.ID,
		})
	default:
		badRequest(c, "missing "+fieldToken, nil)
	}
}

func formValue(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}

func toPaymentResponse(p *domain.PaymentIntent) paymentResponse {
	resp := paymentResponse{
		ID:                     p.ID,
		BuyOrder:               p.BuyOrder,
		Amount:                 p.Amount,
		Currency:               p.Currency,
		Status:                 string(p.Status),
		Description:            p.Description,
		AuthorizationCode:      p.AuthorizationCode,
		CardLast4:              p.CardLast4,
		FailureReason:          p.FailureReason,
		ReconciliationRequired: p.ReconciliationRequired,
		CreatedAt:              p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:              p.UpdatedAt.Format(time.RFC3339),
	}
	if p.Reference != nil {
		resp.Reference = p.Reference.String()
	}
	if p.TransactionDate != nil {
		resp.TransactionDate = p.TransactionDate.Format(time.RFC3339)
	}
	return resp
}
