package payments

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/gateway"
	"github.com/Domenick1991/esteticcore/internal/kafka"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
)

const defaultReconcileBatch = 50

type ReconcileReport struct {
	Checked   int
	Confirmed int
	Aborted   int
	Flagged   int
	Errors    int
}

// ReconcileStale settles PENDING intents whose callback never arrived. The
// gateway status decides: an approved transaction goes through the normal
// confirmation path, anything else is aborted.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (ReconcileReport, error) {
	ctx, span := s.tracer.Start(ctx, "payments.ReconcileStale")
	defer span.End()

	var report ReconcileReport
	if limit <= 0 {
		limit = defaultReconcileBatch
	}
	stale, err := s.store.Repos().Payments.ListPendingBefore(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return report, apperrors.Internal("failed to list stale payments", err)
	}

	for i := range stale {
		if ctx.Err() != nil {
			break
		}
		p := &stale[i]
		report.Checked++
		switch err := s.reconcileOne(ctx, p); {
		case err == nil:
		case apperrors.HasCode(err, apperrors.CodeConflict):
			report.Flagged++
		default:
			report.Errors++
			s.log.WarnContext(ctx, "stale payment not reconciled", "buy_order", p.BuyOrder, "error", err)
		}
		switch p.Status {
		case domain.PaymentStatusAuthorized:
			report.Confirmed++
		case domain.PaymentStatusAborted:
			report.Aborted++
		}
	}
	if report.Checked > 0 {
		s.log.InfoContext(ctx, "stale payments reconciled",
			"checked", report.Checked, "confirmed", report.Confirmed, "aborted", report.Aborted,
			"flagged", report.Flagged, "errors", report.Errors)
	}
	return report, nil
}

// reconcileOne updates p in place with the resulting status.
func (s *PaymentService) reconcileOne(ctx context.Context, p *domain.PaymentIntent) error {
	release, err := s.lock(ctx, p.Token)
	if err != nil {
		return nil
	}
	defer release()

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	res, err := s.gw.Status(gctx, p.Token)
	cancel()

	var reason string
	switch {
	case errors.Is(err, gateway.ErrUnknownToken):
		reason = "gateway has no record of the session"
	case err != nil:
		return err
	case res.Approved():
		conf, err := s.apply(ctx, p, p.Token, res)
		if err != nil {
			return err
		}
		p.Status = conf.Status
		return nil
	default:
		reason = "stale session, gateway status " + res.Status
	}

	updated, changed, err := s.abort(ctx, p.BuyOrder, p.Token, reason)
	if err != nil {
		return err
	}
	p.Status = updated.Status
	if changed {
		s.publish(ctx, kafka.EventPaymentAborted, updated)
	}
	return nil
}
