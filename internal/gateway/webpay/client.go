// Package webpay is a client for the Transbank Webpay Plus REST API (v1.2).
package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Domenick1991/esteticcore/internal/gateway"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	IntegrationURL = "https://webpay3gint.transbank.cl"
	ProductionURL  = "https://webpay3g.transbank.cl"

	transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

	headerAPIKeyID     = "Tbk-Api-Key-Id"
	headerAPIKeySecret = "Tbk-Api-Key-Secret"
)

type Config struct {
	BaseURL      string
	CommerceCode string
	APIKey       string
	Timeout      time.Duration
	// HTTPClient overrides the default instrumented client.
	HTTPClient *http.Client
}

type Client struct {
	baseURL      string
	commerceCode string
	apiKey       string
	client       *http.Client
	tracer       trace.Tracer
}

// APIError is a non-2xx answer from Transbank.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webpay: http %d: %s", e.StatusCode, e.Message)
}

func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = IntegrationURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL:      baseURL,
		commerceCode: cfg.CommerceCode,
		apiKey:       cfg.APIKey,
		client:       client,
		tracer:       otel.Tracer("esteticcore/gateway/webpay"),
	}
}

func (c *Client) Name() string { return "webpay" }

type createRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type createResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type transactionResponse struct {
	VCI        string      `json:"vci"`
	Amount     json.Number `json:"amount"`
	Status     string      `json:"status"`
	BuyOrder   string      `json:"buy_order"`
	SessionID  string      `json:"session_id"`
	CardDetail struct {
		CardNumber string `json:"card_number"`
	} `json:"card_detail"`
	AccountingDate     string    `json:"accounting_date"`
	TransactionDate    time.Time `json:"transaction_date"`
	AuthorizationCode  string    `json:"authorization_code"`
	PaymentTypeCode    string    `json:"payment_type_code"`
	ResponseCode       int       `json:"response_code"`
	InstallmentsNumber int       `json:"installments_number"`
}

type errorResponse struct {
	ErrorMessage string `json:"error_message"`
}

func (c *Client) OpenSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	ctx, span := c.tracer.Start(ctx, "webpay.create", trace.WithAttributes(
		attribute.String("webpay.buy_order", req.BuyOrder),
		attribute.Int64("webpay.amount", req.Amount),
	))
	defer span.End()

	var out createResponse
	_, err := c.do(ctx, http.MethodPost, transactionsPath, createRequest{
		BuyOrder:  req.BuyOrder,
		SessionID: req.SessionID,
		Amount:    req.Amount,
		ReturnURL: req.ReturnURL,
	}, &out)
	if err != nil {
		recordError(span, err)
		return gateway.Session{}, err
	}
	if out.Token == "" {
		err := errors.New("webpay: create returned empty token")
		recordError(span, err)
		return gateway.Session{}, err
	}
	return gateway.Session{Token: out.Token, URL: out.URL}, nil
}

// Confirm commits the transaction. Transbank answers 422 when the token was
// already committed; the stored outcome is then read with a status query.
func (c *Client) Confirm(ctx context.Context, token string) (gateway.Result, error) {
	ctx, span := c.tracer.Start(ctx, "webpay.commit")
	defer span.End()

	res, err := c.transaction(ctx, http.MethodPut, token)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		span.AddEvent("already committed, querying status")
		res, err = c.transaction(ctx, http.MethodGet, token)
	}
	if err != nil {
		recordError(span, err)
		return gateway.Result{}, err
	}
	span.SetAttributes(
		attribute.String("webpay.buy_order", res.BuyOrder),
		attribute.String("webpay.status", res.Status),
		attribute.Int("webpay.response_code", res.ResponseCode),
	)
	return res, nil
}

func (c *Client) Status(ctx context.Context, token string) (gateway.Result, error) {
	ctx, span := c.tracer.Start(ctx, "webpay.status")
	defer span.End()

	res, err := c.transaction(ctx, http.MethodGet, token)
	if err != nil {
		recordError(span, err)
		return gateway.Result{}, err
	}
	return res, nil
}

func (c *Client) transaction(ctx context.Context, method, token string) (gateway.Result, error) {
	if token == "" {
		return gateway.Result{}, gateway.ErrUnknownToken
	}
	var out transactionResponse
	raw, err := c.do(ctx, method, transactionsPath+"/"+url.PathEscape(token), nil, &out)
	if err != nil {
		return gateway.Result{}, err
	}
	return toResult(out, raw)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKeyID, c.commerceCode)
	req.Header.Set(headerAPIKeySecret, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webpay: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("webpay: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.ErrorMessage != "" {
			msg = e.ErrorMessage
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", gateway.ErrUnknownToken, msg)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("webpay: decode response: %w", err)
		}
	}
	return respBody, nil
}

func toResult(tr transactionResponse, raw []byte) (gateway.Result, error) {
	var amount int64
	if tr.Amount != "" {
		f, err := tr.Amount.Float64()
		if err != nil {
			return gateway.Result{}, fmt.Errorf("webpay: amount %q: %w", tr.Amount, err)
		}
		amount = int64(math.Round(f))
	}
	return gateway.Result{
		Status:            tr.Status,
		ResponseCode:      tr.ResponseCode,
		BuyOrder:          tr.BuyOrder,
		SessionID:         tr.SessionID,
		Amount:            amount,
		AuthorizationCode: tr.AuthorizationCode,
		CardLast4:         tr.CardDetail.CardNumber,
		PaymentTypeCode:   tr.PaymentTypeCode,
		Installments:      tr.InstallmentsNumber,
		VCI:               tr.VCI,
		TransactionDate:   tr.TransactionDate,
		Raw:               json.RawMessage(raw),
	}, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var _ gateway.Gateway = (*Client)(nil)
