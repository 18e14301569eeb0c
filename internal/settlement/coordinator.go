package settlement

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel/attribute"

	"settlement-engine/internal/amount"
	"settlement-engine/internal/platform/tracing"
	"settlement-engine/internal/settlement/events"
	"settlement-engine/pkg/requestcontext"
)

// Receipt acknowledges a settlement instruction at the engine's asset scale.
type Receipt struct {
	Scale  int    `json:"scale"`
	Amount string `json:"amount"`
}

// Settle accepts an instruction to pay accountID. The amount is normalized
// synchronously; the handshake and the rail payment run detached from ctx
// and their outcome is reported only through logs, metrics and events.
func (s *Service) Settle(ctx context.Context, accountID, rawAmount string, scale int) (Receipt, error) {
	if err := amount.ValidateScale(scale); err != nil {
		return Receipt{}, err
	}
	units, err := amount.Parse(rawAmount)
	if err != nil {
		return Receipt{}, err
	}
	normalized := amount.Normalize(units, scale, s.cfg.AssetScale)

	s.logger.InfoContext(ctx, "settlement accepted",
		"request_id", requestcontext.RequestID(ctx),
		"account_id", accountID,
		"amount", normalized.String(),
		"unit", s.cfg.UnitName,
	)
	s.metrics.SettlementStarted()

	s.inFlight.Add(1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.inFlight.Done()
		s.settle(detached, accountID, normalized)
	}()

	return Receipt{Scale: s.cfg.AssetScale, Amount: normalized.String()}, nil
}

// Wait blocks until every detached settlement has finished.
func (s *Service) Wait() {
	s.inFlight.Wait()
}

func (s *Service) settle(ctx context.Context, accountID string, units *big.Int) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	ctx, span := tracing.Start(ctx, "settlement.settle",
		attribute.String("account_id", accountID),
		attribute.String("amount", units.String()),
	)
	defer span.End()

	dest, err := s.details.PaymentDetails(ctx, accountID, units.String())
	if err != nil {
		tracing.Fail(span, "payment details", err)
		s.settleFailed(ctx, accountID, units, events.StageHandshake, err)
		return
	}

	if err := s.rail.SettleOutgoingTransaction(ctx, dest, units); err != nil {
		tracing.Fail(span, "rail settlement", err)
		s.settleFailed(ctx, accountID, units, events.StagePlugin, err)
		return
	}

	s.logger.InfoContext(ctx, "settlement sent",
		"request_id", requestcontext.RequestID(ctx),
		"account_id", accountID,
		"amount", units.String(),
		"unit", s.cfg.UnitName,
		"address", dest.Address,
	)
	s.metrics.SettlementFinished("sent", "")
	s.emit(ctx, events.Event{
		Kind:      events.KindSettlementSent,
		AccountID: accountID,
		Amount:    units.String(),
		Scale:     s.cfg.AssetScale,
	})
}

func (s *Service) settleFailed(ctx context.Context, accountID string, units *big.Int, stage string, err error) {
	s.logger.ErrorContext(ctx, "settlement failed",
		"request_id", requestcontext.RequestID(ctx),
		"account_id", accountID,
		"amount", units.String(),
		"unit", s.cfg.UnitName,
		"stage", stage,
		"error", err,
	)
	s.metrics.SettlementFinished("failed", stage)
	s.emit(ctx, events.Event{
		Kind:      events.KindSettlementFailed,
		AccountID: accountID,
		Amount:    units.String(),
		Scale:     s.cfg.AssetScale,
		Stage:     stage,
		Error:     errorText(err),
	})
}
