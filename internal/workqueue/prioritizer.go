package workqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/logging"
	"orderflow/internal/orders"
	"orderflow/internal/store"
)

// Source supplies ready orders and worker history.
type Source interface {
	ReadyOrders(ctx context.Context, stage orders.Stage, settledBefore time.Time) ([]store.ReadyOrder, error)
	ExcludedOrderIDs(ctx context.Context, workerID string, stage orders.Stage) (map[string]struct{}, error)
}

// Prioritizer ranks ready orders for a worker.
type Prioritizer struct {
	cfg    *config.Config
	source Source
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a prioritizer.
func New(cfg *config.Config, source Source, logger *slog.Logger) *Prioritizer {
	return &Prioritizer{
		cfg:    cfg,
		source: source,
		logger: logging.NewComponentLogger(logger, "workqueue"),
		now:    time.Now,
	}
}

// SetClock overrides the prioritizer clock.
func (p *Prioritizer) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// ListEligibleWork returns the orders workerID may accept for stage, best
// first. Disabled workers always get an empty list.
func (p *Prioritizer) ListEligibleWork(ctx context.Context, workerID string, stage orders.Stage) ([]orders.Order, error) {
	if _, ok := orders.ParseStage(string(stage)); !ok {
		return nil, orders.Wrap(orders.ErrInvalidRequest, "list work", fmt.Sprintf("unknown stage %q", stage))
	}
	if p.cfg.IsWorkerDisabled(workerID) {
		p.logger.Debug("worker disabled", logging.String(logging.FieldWorkerID, workerID))
		return nil, nil
	}

	now := p.now().UTC()
	ready, err := p.source.ReadyOrders(ctx, stage, now.Add(-p.cfg.SettleDelay()))
	if err != nil {
		return nil, fmt.Errorf("load ready orders: %w", err)
	}
	excluded, err := p.source.ExcludedOrderIDs(ctx, workerID, stage)
	if err != nil {
		return nil, fmt.Errorf("load worker history: %w", err)
	}

	candidates := make([]orders.Order, 0, len(ready))
	for _, r := range ready {
		if !orders.IsReady(stage, r.Order.Status, r.ReviewCompleted) || !orders.HasStage(r.Order.Type, stage) {
			continue
		}
		if _, skip := excluded[r.Order.ID]; skip {
			continue
		}
		if !p.Eligible(workerID, r.Order) {
			continue
		}
		candidates = append(candidates, r.Order)
	}

	ranked := Rank(candidates, Policy{RushTAT: p.cfg.WorkQueue.RushTAT, PWERThreshold: p.cfg.WorkQueue.PWERThreshold}, now)
	p.logger.Debug("work listed",
		logging.String(logging.FieldWorkerID, workerID),
		logging.String(logging.FieldStage, string(stage)),
		logging.Int("ready", len(ready)),
		logging.Int("offered", len(ranked)),
	)
	return ranked, nil
}

// Eligible reports whether the worker may see the order given customer
// allow-lists and the disabled list.
func (p *Prioritizer) Eligible(workerID string, order orders.Order) bool {
	if p.cfg.IsWorkerDisabled(workerID) {
		return false
	}
	customers := p.cfg.WorkerCustomers(workerID)
	if len(customers) == 0 {
		return true
	}
	org := config.FoldName(order.OrgName)
	for _, customer := range customers {
		if config.FoldName(customer) == org {
			return true
		}
	}
	return false
}

// Policy holds the thresholds used by the hot predicates.
type Policy struct {
	RushTAT       int
	PWERThreshold float64
}

func (pol Policy) rush(o orders.Order) bool     { return o.TAT == pol.RushTAT }
func (pol Policy) highPWER(o orders.Order) bool { return o.PWER >= pol.PWERThreshold }

// difficult is the flag or a predicted error rate at the threshold.
func (pol Policy) difficult(o orders.Order) bool { return o.HighDifficulty || pol.highPWER(o) }

// IsHot reports whether an order belongs in the primary tier.
func (pol Policy) IsHot(o orders.Order, now time.Time) bool {
	return pol.rush(o) || o.Priority >= 1 || pol.difficult(o) || o.IsOverdue(now)
}

// Rank orders candidates. The input order must be deterministic; ties keep
// their input position.
func Rank(candidates []orders.Order, pol Policy, now time.Time) []orders.Order {
	var hot []orders.Order
	for _, o := range candidates {
		if pol.IsHot(o, now) {
			hot = append(hot, o)
		}
	}

	if len(hot) > 0 {
		sort.SliceStable(hot, func(i, j int) bool {
			a, b := hot[i], hot[j]
			if x, y := pol.rush(a), pol.rush(b); x != y {
				return x
			}
			if x, y := a.Priority >= 1, b.Priority >= 1; x != y {
				return x
			}
			if x, y := a.IsOverdue(now), b.IsOverdue(now); x != y {
				return x
			}
			if x, y := pol.difficult(a), pol.difficult(b); x != y {
				return x
			}
			return a.RateBonus > b.RateBonus
		})
		return hot
	}

	fallback := append([]orders.Order(nil), candidates...)
	sort.SliceStable(fallback, func(i, j int) bool {
		a, b := fallback[i].DeliveryTs, fallback[j].DeliveryTs
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return fallback
}
