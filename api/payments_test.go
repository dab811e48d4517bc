package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/service/payments"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPaymentUseCase struct {
	mock.Mock
}

func (m *MockPaymentUseCase) CreatePayment(ctx context.Context, in payments.CreatePaymentInput) (*payments.Checkout, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Checkout), args.Error(1)
}

func (m *MockPaymentUseCase) ConfirmPayment(ctx context.Context, token string) (*payments.Confirmation, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Confirmation), args.Error(1)
}

func (m *MockPaymentUseCase) AbortPayment(ctx context.Context, in payments.AbortInput) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}

func (m *MockPaymentUseCase) GetPayment(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentIntent), args.Error(1)
}

func (m *MockPaymentUseCase) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (payments.ReconcileReport, error) {
	args := m.Called(ctx, olderThan, limit)
	return args.Get(0).(payments.ReconcileReport), args.Error(1)
}

const intentID = "5b0c8a8e-1f43-4c38-9a57-1c1f0a0e7a11"

func newPaymentRouter(svc *MockPaymentUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(nil, NewPaymentHandler(svc))
}

func TestPaymentHandler_create_Order(t *testing.T) {
	svc := &MockPaymentUseCase{}
	router := newPaymentRouter(svc)

	svc.On("CreatePayment", mock.Anything, payments.CreatePaymentInput{Reference: domain.OrderRef{OrderID: 42}}).
		Return(&payments.Checkout{
			IntentID:    intentID,
			BuyOrder:    "42",
			Token:       "01ab",
			Amount:      16980,
			Currency:    "CLP",
			RedirectURL: "https://webpay3gint.transbank.cl/webpayserver/initTransaction?token_ws=01ab",
		}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/payments", bytes.NewReader([]byte(`{"order_id":42}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response checkoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "42", response.BuyOrder)
	assert.Equal(t, int64(16980), response.Amount)
	assert.Contains(t, response.RedirectURL, "token_ws=01ab")
	svc.AssertExpectations(t)
}

func TestPaymentHandler_create_Donation(t *testing.T) {
	svc := &MockPaymentUseCase{}
	router := newPaymentRouter(svc)

	in := payments.CreatePaymentInput{Amount: 5000, DonorName: "Cata", DonorEmail: "cata@example.com"}
	svc.On("CreatePayment", mock.Anything, in).Return(&payments.Checkout{IntentID: intentID, BuyOrder: "D3", Amount: 5000}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/payments", strings.NewReader(`{"amount":5000,"donor_name":"Cata","donor_email":"cata@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestPaymentHandler_create_BadReferences(t *testing.T) {
	bodies := []string{
		`{"order_id":1,"booking_id":2}`,
		`{"order_id":1,"amount":100}`,
		`{"order_id":-1}`,
		`not json`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			svc := &MockPaymentUseCase{}
			router := newPaymentRouter(svc)

			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/payments", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
		})
	}
}

func TestPaymentHandler_create_GatewayDown(t *testing.T) {
	svc := &MockPaymentUseCase{}
	router := newPaymentRouter(svc)
	svc.On("CreatePayment", mock.Anything, mock.Anything).Return(nil, apperrors.Gateway("payment gateway unavailable", context.DeadlineExceeded))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/payments", strings.NewReader(`{"booking_id":7}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var response apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Retryable)
}

func TestPaymentHandler_return_Confirm(t *testing.T) {
	svc := &MockPaymentUseCase{}
	router := newPaymentRouter(svc)
	svc.On("ConfirmPayment", mock.Anything, "01ab").Return(&payments.Confirmation{
		OK:       true,
		BuyOrder: "42",
		Status:   domain.PaymentStatusAuthorized,
		Intent:   &domain.PaymentIntent{ID: intentID},
	}, nil).Twice()

	// Webpay sends the browser back with a GET.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/payments/return?token_ws=01ab", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response confirmationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, confirmationResponse{OK: true, BuyOrder: "42", Status: "AUTHORIZED", IntentID: intentID}, response)

	// And older integrations post a form.
	w = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/payments/return", strings.NewReader(url.Values{"token_ws": {"01ab"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	svc.AssertExpectations(t)
}

func TestPaymentHandler_return_ReconciliationConflict(t *testing.T) {
	svc := &MockPaymentUseCase{}
	router := newPaymentRouter(svc)
	conflict := apperrors.Conflict("payment captured but could not be finalized", domain.ErrInsufficientStock).
		WithDetails(map[string]any{"reason": "reconciliation_required", "buy_order": "42"})
	svc.On("ConfirmPayment", mock.Anything, "01ab").Return(nil, conflict)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/payments/return?token_ws=01ab", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	var response apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "reconciliation_required", response.Details["reason"])
	assert.Equal(t, "42", response.Details["buy_order"])
}

func TestPaymentHandler_return_Abort(t *testing.T) {
	tests := []struct {
		name  string
		form  url.Values
		input payments.AbortInput
	}{
		{
			name:  "payer cancelled",
			form:  url.Values{"TBK_TOKEN": {"01ab"}, "TBK_ORDEN_COMPRA": {"42"}, "TBK_ID_SESION": {"s-1"}},
			input: payments.AbortInput{Token: "01ab", BuyOrder: "42"},
		},
		{
			name:  "session timed out",
			form:  url.Values{"TBK_ORDEN_COMPRA": {"42"}, "TBK_ID_SESION": {"s-1"}},
			input: payments.AbortInput{BuyOrder: "42"},
		},
		{
			name:  "form error with token",
			form:  url.Values{"token_ws": {"01ab"}, "TBK_TOKEN": {"01ab"}, "TBK_ORDEN_COMPRA": {"42"}},
			input: payments.AbortInput{Token: "01ab", BuyOrder: "42"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPaymentUseCase{}
			router := newPaymentRouter(svc)
			svc.On("AbortPayment", mock.Anything, tt.input).
				Return(&domain.PaymentIntent{ID: intentID, BuyOrder: "42", Status: domain.PaymentStatusAborted}, nil)

			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/payments/return", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			var response confirmationResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.False(t, response.OK)
			assert.Equal(t, "ABORTED", response.Status)
			svc.AssertExpectations(t)
			svc.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
		})
	}
}

func TestPaymentHandler_return_MissingToken(t *testing.T) {
	svc := &MockPaymentUseCase{}
	router := newPaymentRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/payments/return", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandler_get(t *testing.T) {
	svc := &MockPaymentUseCase{}
	router := newPaymentRouter(svc)

	authorizedAt := time.Date(2026, 3, 1, 13, 4, 5, 0, time.UTC)
	svc.On("GetPayment", mock.Anything, intentID).Return(&domain.PaymentIntent{
		ID:                intentID,
		BuyOrder:          "B7",
		Reference:         domain.BookingRef{BookingID: 7},
		Amount:            25000,
		Currency:          "CLP",
		Status:            domain.PaymentStatusAuthorized,
		AuthorizationCode: "1213",
		CardLast4:         "6623",
		TransactionDate:   &authorizedAt,
	}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/payments/"+intentID, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response paymentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "booking:7", response.Reference)
	assert.Equal(t, "AUTHORIZED", response.Status)
	assert.Equal(t, "2026-03-01T13:04:05Z", response.TransactionDate)
}
