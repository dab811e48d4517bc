package payments

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/gateway"
	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/internal/repository"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// finalized describes the business object settled by a payment.
type finalized struct {
	kind    domain.ReferenceKind
	already bool
	email   string
	name    string
	booking *domain.Booking
}

// finalizeError wraps failures that happen after the gateway captured money.
type finalizeError struct{ err error }

func (e *finalizeError) Error() string { return e.err.Error() }
func (e *finalizeError) Unwrap() error { return e.err }

// ConfirmPayment exchanges the token with the gateway and settles the intent.
// The browser coming back is not proof of payment; only the gateway result
// is. Confirming an already settled token returns the stored outcome without
// calling the gateway again. Tokens of sessions superseded by a checkout
// retry still resolve to their buy order.
func (s *PaymentService) ConfirmPayment(ctx context.Context, token string) (*Confirmation, error) {
	ctx, span := s.tracer.Start(ctx, "payments.ConfirmPayment")
	defer span.End()

	if token == "" {
		return nil, apperrors.Validation("token is required", nil)
	}
	intent, attempt, err := s.lookup(ctx, token)
	if err != nil {
		return nil, toAppError(err)
	}
	span.SetAttributes(attribute.String("payment.buy_order", intent.BuyOrder))
	if attempt != nil && attempt.Status.Terminal() {
		return s.replayAttempt(intent, attempt)
	}
	if intent.Status.Terminal() && intent.Token == token {
		return s.replay(intent)
	}

	release, err := s.lock(ctx, token)
	if err != nil {
		return nil, err
	}
	defer release()

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	res, err := s.gw.Confirm(gctx, token)
	cancel()
	if err != nil {
		span.RecordError(err)
		s.log.WarnContext(ctx, "gateway confirmation failed", "buy_order", intent.BuyOrder, "error", err)
		return nil, apperrors.Gateway("payment confirmation failed", err)
	}

	conf, err := s.apply(ctx, intent, token, res)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return conf, nil
}

// lookup resolves a token through its attempt, falling back to the intent
// for rows written before attempts were recorded.
func (s *PaymentService) lookup(ctx context.Context, token string) (*domain.PaymentIntent, *domain.PaymentAttempt, error) {
	repos := s.store.Repos()
	attempt, err := repos.Payments.GetAttempt(ctx, token)
	switch {
	case err == nil:
		intent, err := repos.Payments.GetByBuyOrder(ctx, attempt.BuyOrder)
		if err != nil {
			return nil, nil, err
		}
		return intent, attempt, nil
	case errors.Is(err, domain.ErrPaymentNotFound):
		intent, err := repos.Payments.GetByToken(ctx, token)
		if err != nil {
			return nil, nil, err
		}
		return intent, nil, nil
	}
	return nil, nil, err
}

// apply persists a gateway result for the token and, when approved,
// finalizes the referenced object in the same transaction. If finalization
// fails the whole transaction is discarded and the intent is stored as
// FAILED in a second one. A declined superseded session only closes its
// attempt; the intent stays open for the newer one.
func (s *PaymentService) apply(ctx context.Context, intent *domain.PaymentIntent, token string, res gateway.Result) (*Confirmation, error) {
	buyOrder := res.BuyOrder
	if buyOrder == "" {
		buyOrder = intent.BuyOrder
	}
	if buyOrder != intent.BuyOrder {
		return nil, apperrors.Gateway(fmt.Sprintf("gateway answered buy order %q for intent %q", buyOrder, intent.BuyOrder), nil)
	}

	// The gateway may already have captured money; the outcome is recorded
	// even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var (
		result      *domain.PaymentIntent
		attempt     *domain.PaymentAttempt
		fin         *finalized
		replayed    bool
		attemptOnly bool
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		current, err := r.Payments.GetByBuyOrderForUpdate(ctx, buyOrder)
		if err != nil {
			return err
		}
		result = current
		attempt, err = attemptFor(ctx, r, current, token)
		if err != nil {
			return err
		}
		superseded := current.Token != token
		if attempt.Status.Terminal() || (current.Status.Terminal() && !superseded) {
			replayed = true
			return nil
		}

		recordAttempt(attempt, res)
		switch {
		case current.Status.Terminal():
			// Another session already settled the buy order.
			attemptOnly = true
			if res.Approved() {
				attempt.Status = domain.PaymentStatusAuthorized
				attempt.FailureReason = fmt.Sprintf("buy order already settled through token %s", current.Token)
				attempt.ReconciliationRequired = true
			} else {
				attempt.Status = domain.PaymentStatusFailed
				attempt.FailureReason = declineReason(res)
			}
			return r.Payments.SaveAttempt(ctx, attempt)

		case !res.Approved():
			attempt.Status = domain.PaymentStatusFailed
			attempt.FailureReason = declineReason(res)
			if superseded {
				attemptOnly = true
				return r.Payments.SaveAttempt(ctx, attempt)
			}
			record(current, token, res)
			current.Status = domain.PaymentStatusFailed
			current.FailureReason = attempt.FailureReason

		default:
			if res.Amount != current.Amount {
				return &finalizeError{fmt.Errorf("%w: gateway %d, intent %d", domain.ErrAmountMismatch, res.Amount, current.Amount)}
			}
			f, err := s.finalize(ctx, r, current)
			if err != nil {
				return &finalizeError{err}
			}
			fin = f
			record(current, token, res)
			current.Status = domain.PaymentStatusAuthorized
			current.FailureReason = ""
			attempt.Status = domain.PaymentStatusAuthorized
		}
		if err := r.Payments.Upsert(ctx, current); err != nil {
			return err
		}
		return r.Payments.SaveAttempt(ctx, attempt)
	})

	var fe *finalizeError
	if errors.As(err, &fe) {
		return nil, s.flagReconciliation(ctx, buyOrder, token, res, fe.err)
	}
	if err != nil {
		return nil, toAppError(err)
	}
	if replayed {
		return s.replayAttempt(result, attempt)
	}

	if attemptOnly {
		if attempt.ReconciliationRequired {
			view := attemptView(result, attempt)
			s.log.ErrorContext(ctx, "payment captured for an already settled buy order",
				"intent_id", result.ID, "buy_order", buyOrder, "token", token, "authorization_code", attempt.AuthorizationCode)
			s.publishReconciliation(ctx, view)
			return nil, reconciliationError(view, errors.New(attempt.FailureReason))
		}
		s.log.InfoContext(ctx, "superseded payment session declined", "intent_id", result.ID, "buy_order", buyOrder, "reason", attempt.FailureReason)
		return attemptConfirmation(result, attempt), nil
	}

	if result.Status == domain.PaymentStatusAuthorized {
		s.log.InfoContext(ctx, "payment confirmed", "intent_id", result.ID, "buy_order", buyOrder, "reference", result.Reference.String())
		s.publish(ctx, kafka.EventPaymentConfirmed, result)
		s.afterFinalize(ctx, result, fin)
	} else {
		s.log.InfoContext(ctx, "payment declined", "intent_id", result.ID, "buy_order", buyOrder, "reason", result.FailureReason)
		s.publish(ctx, kafka.EventPaymentFailed, result)
	}
	return confirmation(result), nil
}

// finalize settles the referenced object unless it already is. Stock and the
// order status change together or not at all.
func (s *PaymentService) finalize(ctx context.Context, r repository.Repos, intent *domain.PaymentIntent) (*finalized, error) {
	switch ref := intent.Reference.(type) {
	case domain.OrderRef:
		o, err := r.Orders.GetForUpdate(ctx, ref.OrderID)
		if err != nil {
			return nil, err
		}
		f := &finalized{kind: domain.ReferenceOrder, email: o.CustomerEmail, name: o.CustomerName}
		if o.Finalized() {
			f.already = true
			return f, nil
		}
		if len(o.Items) == 0 {
			return nil, domain.ErrEmptyOrder
		}
		if o.TotalAmount != intent.Amount {
			return nil, fmt.Errorf("%w: order total %d, intent %d", domain.ErrAmountMismatch, o.TotalAmount, intent.Amount)
		}
		// Product rows are locked in id order so concurrent orders cannot deadlock.
		items := slices.Clone(o.Items)
		slices.SortFunc(items, func(a, b domain.OrderItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
		for _, it := range items {
			if err := r.Products.DecrementStock(ctx, it.ProductID, it.Qty); err != nil {
				return nil, fmt.Errorf("item %s x%d: %w", it.SKU, it.Qty, err)
			}
		}
		return f, r.Orders.MarkPaid(ctx, o.ID, s.now())

	case domain.BookingRef:
		b, err := r.Bookings.GetForUpdate(ctx, ref.BookingID)
		if err != nil {
			return nil, err
		}
		f := &finalized{kind: domain.ReferenceBooking, email: b.CustomerEmail, name: b.CustomerName}
		switch b.Status {
		case domain.BookingStatusPending:
		case domain.BookingStatusPaid, domain.BookingStatusFulfilled, domain.BookingStatusNoShow:
			f.already = true
			return f, nil
		default:
			return nil, fmt.Errorf("booking %d is %s: %w", b.ID, b.Status, domain.ErrInvalidTransition)
		}
		updated, err := r.Bookings.UpdateStatus(ctx, b.ID, domain.BookingStatusPaid)
		if err != nil {
			return nil, err
		}
		slot, err := r.Slots.Get(ctx, updated.SlotID)
		if err != nil {
			return nil, err
		}
		svc, err := r.Slots.GetService(ctx, slot.ServiceID)
		if err != nil {
			return nil, err
		}
		updated.Slot, updated.Service = slot, svc
		f.booking = updated
		return f, nil

	case domain.DonationRef:
		dn, err := r.Donations.GetForUpdate(ctx, ref.DonationID)
		if err != nil {
			return nil, err
		}
		f := &finalized{kind: domain.ReferenceDonation, email: dn.DonorEmail, name: dn.DonorName}
		if dn.Status == domain.DonationStatusPaid {
			f.already = true
			return f, nil
		}
		return f, r.Donations.MarkPaid(ctx, dn.ID)
	}
	return nil, domain.ErrInvalidReference
}

func (s *PaymentService) afterFinalize(ctx context.Context, p *domain.PaymentIntent, f *finalized) {
	if f == nil || f.already {
		return
	}
	switch f.kind {
	case domain.ReferenceOrder:
		if s.stock != nil {
			s.stock.Invalidate(ctx)
		}
	case domain.ReferenceBooking:
		if s.calendar != nil && f.booking != nil {
			s.calendar.Notify(*f.booking)
		}
	}
	s.notify(ctx, p, f)
}

// flagReconciliation stores the intent as FAILED after a captured payment
// could not be finalized, and reports a conflict someone has to resolve.
func (s *PaymentService) flagReconciliation(ctx context.Context, buyOrder, token string, res gateway.Result, cause error) error {
	var intent *domain.PaymentIntent
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		current, err := r.Payments.GetByBuyOrderForUpdate(ctx, buyOrder)
		if err != nil {
			return err
		}
		attempt, err := attemptFor(ctx, r, current, token)
		if err != nil {
			return err
		}
		record(current, token, res)
		current.Status = domain.PaymentStatusFailed
		current.FailureReason = cause.Error()
		current.ReconciliationRequired = true
		intent = current
		if err := r.Payments.Upsert(ctx, current); err != nil {
			return err
		}
		recordAttempt(attempt, res)
		attempt.Status = domain.PaymentStatusFailed
		attempt.FailureReason = current.FailureReason
		attempt.ReconciliationRequired = true
		return r.Payments.SaveAttempt(ctx, attempt)
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to record unfinalized payment", "buy_order", buyOrder, "cause", cause, "error", err)
		return apperrors.Internal("payment captured but could not be recorded", errors.Join(cause, err))
	}

	s.log.ErrorContext(ctx, "payment captured but finalization failed",
		"intent_id", intent.ID, "buy_order", buyOrder, "authorization_code", intent.AuthorizationCode, "error", cause)
	s.publishReconciliation(ctx, intent)
	return reconciliationError(intent, cause)
}

func (s *PaymentService) replay(intent *domain.PaymentIntent) (*Confirmation, error) {
	if intent.NeedsReconciliation() {
		return nil, reconciliationError(intent, errors.New(intent.FailureReason))
	}
	return confirmation(intent), nil
}

// replayAttempt returns the recorded outcome of a token. When the token is
// the intent's own, the intent is the record.
func (s *PaymentService) replayAttempt(intent *domain.PaymentIntent, a *domain.PaymentAttempt) (*Confirmation, error) {
	if a == nil || !a.Status.Terminal() || a.Token == intent.Token {
		return s.replay(intent)
	}
	if a.ReconciliationRequired {
		return nil, reconciliationError(attemptView(intent, a), errors.New(a.FailureReason))
	}
	return attemptConfirmation(intent, a), nil
}

func (s *PaymentService) lock(ctx context.Context, token string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	ok, err := s.locker.AcquirePaymentLock(ctx, token, max(paymentLockTTL, 2*s.gatewayTimeout))
	if err != nil {
		s.log.WarnContext(ctx, "payment lock unavailable", "error", err)
		return func() {}, nil
	}
	if !ok {
		conflict := apperrors.Conflict("payment confirmation already in progress", nil)
		conflict.Retryable = true
		return nil, conflict
	}
	return func() {
		if err := s.locker.ReleasePaymentLock(context.WithoutCancel(ctx), token); err != nil {
			s.log.WarnContext(ctx, "payment lock release failed", "error", err)
		}
	}, nil
}

func record(p *domain.PaymentIntent, token string, res gateway.Result) {
	p.Token = token
	p.AuthorizationCode = res.AuthorizationCode
	p.CardLast4 = res.CardLast4
	code := res.ResponseCode
	p.ResponseCode = &code
	if !res.TransactionDate.IsZero() {
		at := res.TransactionDate
		p.TransactionDate = &at
	}
	if len(res.Raw) > 0 {
		p.GatewayResponse = res.Raw
	}
}

func recordAttempt(a *domain.PaymentAttempt, res gateway.Result) {
	a.AuthorizationCode = res.AuthorizationCode
	code := res.ResponseCode
	a.ResponseCode = &code
	if len(res.Raw) > 0 {
		a.GatewayResponse = res.Raw
	}
}

// attemptFor loads the attempt of token, creating it for intents that
// predate attempt records.
func attemptFor(ctx context.Context, r repository.Repos, p *domain.PaymentIntent, token string) (*domain.PaymentAttempt, error) {
	a, err := r.Payments.GetAttempt(ctx, token)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return &domain.PaymentAttempt{Token: token, IntentID: p.ID, BuyOrder: p.BuyOrder, Status: domain.PaymentStatusPending}, nil
	}
	return a, err
}

// attemptView is the intent as seen through one of its attempts.
func attemptView(p *domain.PaymentIntent, a *domain.PaymentAttempt) *domain.PaymentIntent {
	view := *p
	view.Token = a.Token
	view.AuthorizationCode = a.AuthorizationCode
	view.FailureReason = a.FailureReason
	return &view
}

func declineReason(res gateway.Result) string {
	return fmt.Sprintf("gateway status %s, response code %d", res.Status, res.ResponseCode)
}

func attemptConfirmation(p *domain.PaymentIntent, a *domain.PaymentAttempt) *Confirmation {
	return &Confirmation{
		OK:       a.Status == domain.PaymentStatusAuthorized && !a.ReconciliationRequired,
		BuyOrder: p.BuyOrder,
		Status:   a.Status,
		Intent:   p,
	}
}

func confirmation(p *domain.PaymentIntent) *Confirmation {
	return &Confirmation{
		OK:       p.Status == domain.PaymentStatusAuthorized,
		BuyOrder: p.BuyOrder,
		Status:   p.Status,
		Intent:   p,
	}
}

func reconciliationError(p *domain.PaymentIntent, cause error) error {
	details := map[string]any{
		"reason":             "reconciliation_required",
		"intent_id":          p.ID,
		"buy_order":          p.BuyOrder,
		"authorization_code": p.AuthorizationCode,
		"token":              p.Token,
	}
	if p.Reference != nil {
		details["reference"] = p.Reference.String()
	}
	return apperrors.Conflict("payment captured but could not be finalized", cause).WithDetails(details)
}
