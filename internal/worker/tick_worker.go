package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cajaclaro/internal/amqp"
	"cajaclaro/internal/core"
	applog "cajaclaro/internal/log"
	"cajaclaro/internal/services"
)

// TickWorker materializes the due recurring definitions of the account
// named in a tick request.
type TickWorker struct {
	processor *services.RecurringProcessor
	loc       *time.Location
	now       func() time.Time
	logger    *applog.Logger
}

func NewTickWorker(processor *services.RecurringProcessor, loc *time.Location) *TickWorker {
	if loc == nil {
		loc = time.UTC
	}
	return &TickWorker{
		processor: processor,
		loc:       loc,
		now:       time.Now,
		logger:    applog.ForComponent(applog.ComponentWorker),
	}
}

// HandleTickRequest processes a single tick request from AMQP. It returns a
// retryable error when any definition failed for a transient reason, so
// the broker redelivers; permanent failures are logged and acknowledged.
func (w *TickWorker) HandleTickRequest(ctx context.Context, msg *amqp.TickRequestMessage) error {
	today := services.BusinessDate(w.now(), w.loc)
	asOf := msg.AsOf
	// Requests never move a definition past the worker's own today
	if asOf.IsEmpty() || asOf.After(today) {
		asOf = today
	}

	w.logger.DebugContext(ctx, "Processing tick request",
		applog.FieldAccountID, msg.AccountID.String(),
		applog.FieldAsOf, asOf.String())

	report, err := w.processor.ProcessAccount(ctx, msg.AccountID, asOf)
	if err != nil {
		return fmt.Errorf("tick account %s: %w", msg.AccountID, err)
	}

	var retry []error
	for _, f := range report.Failures {
		if core.IsRetryable(f.Err) {
			retry = append(retry, f.Err)
		}
	}
	if report.Materialized > 0 || len(report.Failures) > 0 {
		w.logger.InfoContext(ctx, "Tick request processed",
			applog.FieldAccountID, msg.AccountID.String(),
			applog.FieldAsOf, asOf.String(),
			"checked", report.Checked,
			"materialized", report.Materialized,
			"failures", len(report.Failures))
	}
	if len(retry) > 0 {
		return fmt.Errorf("tick account %s: %w", msg.AccountID, errors.Join(retry...))
	}
	return nil
}
