package settlement

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"settlement-engine/internal/amount"
	"settlement-engine/internal/platform/tracing"
	"settlement-engine/internal/plugin"
	"settlement-engine/internal/settlement/events"
	dErrors "settlement-engine/pkg/domain-errors"
	"settlement-engine/pkg/requestcontext"
)

// HandleIncoming processes one rail event. A rejected transaction yields a
// CodeBadRequest error and an unresolvable one a CodeNotFound error. Once an
// account is credited the connector is notified; a failed notification is
// logged and emitted but does not fail the call.
func (s *Service) HandleIncoming(ctx context.Context, event plugin.Event) error {
	ctx, span := tracing.Start(ctx, "settlement.handle_incoming",
		attribute.String("account_ref", event.AccountRef),
	)
	defer span.End()
	requestID := requestcontext.RequestID(ctx)

	res, err := s.rail.HandleIncomingTransaction(ctx, event)
	if err != nil || !res.Result {
		s.logger.WarnContext(ctx, "rail rejected incoming transaction",
			"request_id", requestID,
			"error", err,
		)
		s.metrics.IncrementCreditOutcome("rejected")
		s.emit(ctx, events.Event{Kind: events.KindTransactionRejected, Error: errorText(err)})
		rejected := dErrors.New(dErrors.CodeBadRequest, "transaction rejected")
		if err != nil {
			rejected = dErrors.Wrap(err, dErrors.CodeBadRequest, "transaction rejected")
		}
		tracing.Fail(span, "rejected", rejected)
		return rejected
	}

	accountID, err := s.resolve(ctx, res.Value.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "incoming transaction matches no account",
			"request_id", requestID,
			"id", res.Value.ID,
			"error", err,
		)
		s.metrics.IncrementCreditOutcome("unresolved")
		s.emit(ctx, events.Event{
			Kind:  events.KindTransactionUnresolved,
			Error: errorText(err),
		})
		tracing.Fail(span, "unresolved", err)
		return err
	}

	credit, err := amount.FromMajorUnits(res.Value.Pay, s.cfg.AssetScale)
	if err != nil {
		s.logger.WarnContext(ctx, "incoming transaction amount invalid",
			"request_id", requestID,
			"account_id", accountID,
			"pay", res.Value.Pay,
			"error", err,
		)
		s.metrics.IncrementCreditOutcome("rejected")
		s.emit(ctx, events.Event{
			Kind:      events.KindTransactionRejected,
			AccountID: accountID,
			Error:     errorText(err),
		})
		tracing.Fail(span, "invalid amount", err)
		return err
	}

	credited := events.Event{
		AccountID: accountID,
		Amount:    credit.String(),
		Scale:     s.cfg.AssetScale,
	}
	if err := s.notifier.NotifySettlement(ctx, accountID, credit, s.cfg.AssetScale); err != nil {
		s.logger.ErrorContext(ctx, "failed to notify connector of settlement",
			"request_id", requestID,
			"account_id", accountID,
			"amount", credit.String(),
			"error", err,
		)
		s.metrics.IncrementCreditOutcome("notify_failed")
		credited.Kind = events.KindCreditFailed
		credited.Error = err.Error()
		s.emit(ctx, credited)
		return nil
	}

	s.logger.InfoContext(ctx, "account credited",
		"request_id", requestID,
		"account_id", accountID,
		"amount", credit.String(),
		"unit", s.cfg.UnitName,
	)
	s.metrics.IncrementCreditOutcome("credited")
	credited.Kind = events.KindCreditNotified
	s.emit(ctx, credited)
	return nil
}

// resolve turns the rail's identifier into a registered account id.
func (s *Service) resolve(ctx context.Context, id string) (string, error) {
	accountID := id
	if s.tags != nil {
		var err error
		accountID, err = s.tags.AccountFor(ctx, id)
		if err != nil {
			return "", err
		}
	}
	acct, err := s.accounts.Find(ctx, accountID)
	if err != nil {
		return "", err
	}
	return acct.ID, nil
}
