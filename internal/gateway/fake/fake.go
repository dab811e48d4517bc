// Package fake is an in-process gateway for tests and local development.
// Every session is approved unless an outcome is scripted for its buy order.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Domenick1991/esteticcore/internal/gateway"
)

type Outcome struct {
	Status       string
	ResponseCode int
	// Amount overrides the session amount in the result when non-zero.
	Amount int64
	// Err is returned by Confirm and Status instead of a result.
	Err error
}

var (
	Approve = Outcome{Status: gateway.StatusAuthorized}
	Decline = Outcome{Status: gateway.StatusFailed, ResponseCode: -1}
)

type session struct {
	req       gateway.SessionRequest
	committed *gateway.Result
}

type Gateway struct {
	mu           sync.Mutex
	baseURL      string
	seq          int
	sessions     map[string]*session
	scripts      map[string]Outcome
	openErr      error
	confirmCalls int
	statusCalls  int
	now          func() time.Time
}

func New(baseURL string) *Gateway {
	return &Gateway{
		baseURL:  baseURL,
		sessions: make(map[string]*session),
		scripts:  make(map[string]Outcome),
		now:      time.Now,
	}
}

func (g *Gateway) Name() string { return "fake" }

// Script sets the outcome of the next commit for buyOrder.
func (g *Gateway) Script(buyOrder string, o Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[buyOrder] = o
}

// FailOpen makes OpenSession return err until reset with nil.
func (g *Gateway) FailOpen(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.openErr = err
}

func (g *Gateway) ConfirmCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmCalls
}

func (g *Gateway) StatusCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

// TokenFor returns the token of the latest session opened for buyOrder.
func (g *Gateway) TokenFor(buyOrder string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var token string
	var best int
	for t, s := range g.sessions {
		n, _ := strconv.Atoi(t[len("fake-"):])
		if s.req.BuyOrder == buyOrder && n > best {
			token, best = t, n
		}
	}
	return token
}

func (g *Gateway) OpenSession(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Session{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openErr != nil {
		return gateway.Session{}, g.openErr
	}
	g.seq++
	token := fmt.Sprintf("fake-%d", g.seq)
	g.sessions[token] = &session{req: req}
	return gateway.Session{Token: token, URL: g.baseURL}, nil
}

func (g *Gateway) Confirm(ctx context.Context, token string) (gateway.Result, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Result{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmCalls++

	s, ok := g.sessions[token]
	if !ok {
		return gateway.Result{}, gateway.ErrUnknownToken
	}
	if s.committed != nil {
		return *s.committed, nil
	}

	o, ok := g.scripts[s.req.BuyOrder]
	if !ok {
		o = Approve
	}
	if o.Err != nil {
		return gateway.Result{}, o.Err
	}
	delete(g.scripts, s.req.BuyOrder)

	res := g.result(s.req, o)
	s.committed = &res
	return res, nil
}

func (g *Gateway) Status(ctx context.Context, token string) (gateway.Result, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Result{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++

	s, ok := g.sessions[token]
	if !ok {
		return gateway.Result{}, gateway.ErrUnknownToken
	}
	if s.committed != nil {
		return *s.committed, nil
	}
	if o, ok := g.scripts[s.req.BuyOrder]; ok && o.Err != nil {
		return gateway.Result{}, o.Err
	}
	return gateway.Result{
		Status:    gateway.StatusInitialized,
		BuyOrder:  s.req.BuyOrder,
		SessionID: s.req.SessionID,
		Amount:    s.req.Amount,
	}, nil
}

func (g *Gateway) result(req gateway.SessionRequest, o Outcome) gateway.Result {
	amount := req.Amount
	if o.Amount != 0 {
		amount = o.Amount
	}
	res := gateway.Result{
		Status:          o.Status,
		ResponseCode:    o.ResponseCode,
		BuyOrder:        req.BuyOrder,
		SessionID:       req.SessionID,
		Amount:          amount,
		CardLast4:       "6623",
		PaymentTypeCode: "VN",
		TransactionDate: g.now().UTC(),
	}
	if o.Status == gateway.StatusAuthorized {
		res.AuthorizationCode = fmt.Sprintf("%06d", 1000+g.seq)
	}
	res.Raw, _ = json.Marshal(map[string]any{
		"status":             res.Status,
		"response_code":      res.ResponseCode,
		"buy_order":          res.BuyOrder,
		"session_id":         res.SessionID,
		"amount":             res.Amount,
		"authorization_code": res.AuthorizationCode,
		"card_detail":        map[string]string{"card_number": res.CardLast4},
		"transaction_date":   res.TransactionDate,
	})
	return res
}

var _ gateway.Gateway = (*Gateway)(nil)
