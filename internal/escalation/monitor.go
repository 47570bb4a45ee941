package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/logging"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/store"
)

// Repository is the persistence a run needs. *store.Store satisfies it.
type Repository interface {
	UnassignedOrders(ctx context.Context, statuses []orders.Status) ([]orders.Order, error)
	GetFile(ctx context.Context, id string) (*orders.File, error)
	ApplyTransition(ctx context.Context, t store.Transition) error
	EnqueueMessages(ctx context.Context, msgs ...notifications.Message) (int, error)
}

// Summary lists escalated order ids and the bucket each landed in.
type Summary struct {
	Escalated []string
	Buckets   map[int][]string
	Failed    []string
}

// Monitor runs escalation sweeps.
type Monitor struct {
	cfg        *config.Config
	repo       Repository
	thresholds []int
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a monitor.
func New(cfg *config.Config, repo Repository, logger *slog.Logger) *Monitor {
	thresholds := append([]int(nil), cfg.Escalation.ThresholdsHours...)
	sort.Ints(thresholds)
	return &Monitor{
		cfg:        cfg,
		repo:       repo,
		thresholds: thresholds,
		logger:     logging.NewComponentLogger(logger, "escalation"),
		now:        time.Now,
	}
}

// SetClock overrides the monitor clock.
func (m *Monitor) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Bucket returns the largest threshold not above waited, or false when
// waited is below every threshold.
func Bucket(thresholds []int, waited time.Duration) (int, bool) {
	hours := waited.Hours()
	bucket, ok := 0, false
	for _, threshold := range thresholds {
		if hours < float64(threshold) {
			break
		}
		bucket, ok = threshold, true
	}
	return bucket, ok
}

// WaitStart is when an order began waiting for a worker: its order time, or
// its last release from screening when that is later.
func WaitStart(order orders.Order) time.Time {
	if order.ReleasedTs != nil && order.ReleasedTs.After(order.OrderTs) {
		return *order.ReleasedTs
	}
	return order.OrderTs
}

type candidate struct {
	order  orders.Order
	bucket int
	waited time.Duration
}

// RunEscalation escalates every unclaimed order past a threshold. Per-order
// failures are recorded in the summary; only a failure to list orders is
// returned.
func (m *Monitor) RunEscalation(ctx context.Context) (Summary, error) {
	summary := Summary{Buckets: map[int][]string{}}
	if len(m.thresholds) == 0 {
		return summary, nil
	}
	pending, err := m.repo.UnassignedOrders(ctx, m.cfg.EscalationStatuses())
	if err != nil {
		return summary, fmt.Errorf("list unassigned orders: %w", err)
	}
	now := m.now().UTC()

	var bucketed []candidate
	for _, order := range pending {
		waited := now.Sub(WaitStart(order))
		if bucket, ok := Bucket(m.thresholds, waited); ok {
			bucketed = append(bucketed, candidate{order: order, bucket: bucket, waited: waited})
		}
	}
	if len(bucketed) == 0 {
		return summary, nil
	}

	var escalated []candidate
	for _, c := range bucketed {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := m.escalate(ctx, c.order, now); err != nil {
			if errors.Is(err, orders.ErrStaleState) {
				m.logger.Debug("order claimed before escalation",
					logging.String(logging.FieldOrderID, c.order.ID))
				continue
			}
			summary.Failed = append(summary.Failed, c.order.ID)
			logging.WarnWithContext(m.logger, "order escalation failed", "escalation_failed",
				logging.String(logging.FieldOrderID, c.order.ID),
				logging.Int("bucket_hours", c.bucket),
				logging.Error(err),
				logging.String(logging.FieldImpact, "order stays in the queue until the next run"),
			)
			continue
		}
		escalated = append(escalated, c)
		summary.Escalated = append(summary.Escalated, c.order.ID)
		summary.Buckets[c.bucket] = append(summary.Buckets[c.bucket], c.order.ID)
	}
	if len(escalated) == 0 {
		return summary, nil
	}

	digest := notifications.MustMessage(notifications.TemplatePendingFilesAlert, m.recipient(), m.digest(ctx, escalated))
	if _, err := m.repo.EnqueueMessages(ctx, digest); err != nil {
		logging.WarnWithContext(m.logger, "escalation digest not queued", "escalation_digest_failed",
			logging.Int("orders", len(escalated)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "orders were escalated without an operations alert"),
		)
	}
	m.logger.Info("escalation run complete",
		logging.Int("escalated", len(summary.Escalated)),
		logging.Int("failed", len(summary.Failed)),
	)
	return summary, nil
}

func (m *Monitor) escalate(ctx context.Context, order orders.Order, now time.Time) error {
	return m.repo.ApplyTransition(ctx, store.Transition{
		OrderID: order.ID,
		Order: &store.OrderUpdate{
			From:                 order.Status,
			To:                   orders.StatusSubmittedForScreening,
			ReportOption:         orders.ReportNotPickedUp,
			IncrementScreenCount: true,
			ScreenedFrom:         order.Status,
		},
		At: now,
	})
}

func (m *Monitor) digest(ctx context.Context, escalated []candidate) notifications.Payload {
	entries := make([]map[string]any, 0, len(escalated))
	for _, c := range escalated {
		entry := map[string]any{
			"order_id":     c.order.ID,
			"status":       string(c.order.Status),
			"bucket_hours": c.bucket,
			"waited_hours": fmt.Sprintf("%.1f", c.waited.Hours()),
		}
		if file, err := m.repo.GetFile(ctx, c.order.FileID); err == nil {
			entry["filename"] = file.Filename
		}
		entries = append(entries, entry)
	}
	return notifications.Payload{"count": len(escalated), "orders": entries}
}

func (m *Monitor) recipient() string {
	if r := m.cfg.Escalation.OpsRecipient; r != "" {
		return r
	}
	return "ops"
}
