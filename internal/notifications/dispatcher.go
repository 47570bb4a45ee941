package notifications

import (
	"context"
	"log/slog"
	"time"

	"orderflow/internal/logging"
)

const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = time.Hour
)

// Outbox is the durable queue the dispatcher drains.
type Outbox interface {
	PendingMessages(ctx context.Context, now time.Time, limit int) ([]Message, error)
	MarkMessageSent(ctx context.Context, id string, at time.Time) error
	// MarkMessageFailed records a failed attempt. When dead is true the
	// message is parked and never retried.
	MarkMessageFailed(ctx context.Context, id string, attempts int, lastErr string, next time.Time, dead bool) error
}

// DispatchResult summarizes one drain pass.
type DispatchResult struct {
	Sent   int
	Failed int
	Dead   int
}

// Dispatcher delivers outbox messages through a Service with retry backoff.
type Dispatcher struct {
	outbox      Outbox
	service     Service
	logger      *slog.Logger
	maxAttempts int
	batchSize   int
	now         func() time.Time
}

// NewDispatcher wires a dispatcher. maxAttempts and batchSize fall back to
// 5 and 50 when non-positive.
func NewDispatcher(outbox Outbox, service Service, logger *slog.Logger, maxAttempts, batchSize int) *Dispatcher {
	if service == nil {
		service = noopService{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		outbox:      outbox,
		service:     service,
		logger:      logging.NewComponentLogger(logger, "outbox"),
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// SetClock overrides the dispatcher clock.
func (d *Dispatcher) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// DispatchOnce sends every due message once.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult
	now := d.now().UTC()
	messages, err := d.outbox.PendingMessages(ctx, now, d.batchSize)
	if err != nil {
		return result, err
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		sendErr := d.service.Send(ctx, msg)
		if sendErr == nil {
			if err := d.outbox.MarkMessageSent(ctx, msg.ID, d.now().UTC()); err != nil {
				return result, err
			}
			result.Sent++
			d.logger.Debug("notification sent",
				logging.String("message_id", msg.ID),
				logging.String("template", string(msg.Template)),
				logging.String("recipient", msg.Recipient),
			)
			continue
		}

		attempts := msg.Attempts + 1
		dead := attempts >= d.maxAttempts
		next := now.Add(backoff(attempts))
		if err := d.outbox.MarkMessageFailed(ctx, msg.ID, attempts, sendErr.Error(), next, dead); err != nil {
			return result, err
		}
		if dead {
			result.Dead++
			logging.ErrorWithContext(d.logger, "notification abandoned", "outbox_message_dead",
				logging.String("message_id", msg.ID),
				logging.String("template", string(msg.Template)),
				logging.Int("attempts", attempts),
				logging.Error(sendErr),
				logging.String(logging.FieldErrorHint, "check notifications.endpoint reachability"),
			)
			continue
		}
		result.Failed++
		logging.WarnWithContext(d.logger, "notification send failed", "outbox_send_failed",
			logging.String("message_id", msg.ID),
			logging.String("template", string(msg.Template)),
			logging.Int("attempts", attempts),
			logging.Error(sendErr),
			logging.String(logging.FieldImpact, "delivery retried at "+next.Format(time.RFC3339)),
		)
	}
	return result, nil
}

func backoff(attempts int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}
