package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/logging"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/store"
)

// Repository is the persistence a sweep needs. *store.Store satisfies it.
type Repository interface {
	ActiveAssignments(ctx context.Context, stages []orders.Stage) ([]store.ActiveAssignment, error)
	ApplyTransition(ctx context.Context, t store.Transition) error
	EnqueueMessages(ctx context.Context, msgs ...notifications.Message) (int, error)
}

// Summary lists job ids by sweep outcome.
type Summary struct {
	TimedOut []string
	Warned   []string
	Skipped  []string
	Failed   []string
}

// Sweeper runs timeout sweeps.
type Sweeper struct {
	cfg    *config.Config
	repo   Repository
	policy Policy
	logger *slog.Logger
	now    func() time.Time
}

// New builds a sweeper.
func New(cfg *config.Config, repo Repository, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cfg:    cfg,
		repo:   repo,
		policy: NewPolicy(cfg),
		logger: logging.NewComponentLogger(logger, "reaper"),
		now:    time.Now,
	}
}

// SetClock overrides the sweep clock.
func (s *Sweeper) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Policy returns the allowance policy in use.
func (s *Sweeper) Policy() Policy {
	return s.policy
}

// RunTimeoutSweep warns or times out every ACCEPTED job in an SLA stage.
// Failures on one assignment are recorded in the summary and do not stop
// the sweep; only a failure to list assignments is returned.
func (s *Sweeper) RunTimeoutSweep(ctx context.Context) (Summary, error) {
	var summary Summary
	stages := s.cfg.SLAStages()
	if len(stages) == 0 {
		return summary, nil
	}
	active, err := s.repo.ActiveAssignments(ctx, stages)
	if err != nil {
		return summary, fmt.Errorf("list active assignments: %w", err)
	}
	now := s.now().UTC()

	for _, a := range active {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if a.Job.AssignMode == orders.AssignManual || s.cfg.IsExemptOrg(a.Order.OrgName) {
			continue
		}
		if a.File.DurationSeconds <= 0 {
			s.logger.Debug("assignment skipped, file has no duration",
				logging.String(logging.FieldJobID, a.Job.ID))
			continue
		}

		verdict := s.policy.Evaluate(a.Job, a.File, now)
		switch verdict.Action {
		case ActionWarn:
			if err := s.warn(ctx, a, verdict); err != nil {
				s.fail(&summary, a, "warn", err)
				continue
			}
			summary.Warned = append(summary.Warned, a.Job.ID)
		case ActionTimeout:
			err := s.timeout(ctx, a, verdict, now)
			switch {
			case err == nil:
				summary.TimedOut = append(summary.TimedOut, a.Job.ID)
				s.logger.Info("assignment timed out",
					logging.String(logging.FieldOrderID, a.Order.ID),
					logging.String(logging.FieldJobID, a.Job.ID),
					logging.String(logging.FieldWorkerID, a.Job.WorkerID),
					logging.Duration("allowance", verdict.Allowance),
				)
			case errors.Is(err, orders.ErrStaleState), errors.Is(err, orders.ErrAssignmentNotFound):
				summary.Skipped = append(summary.Skipped, a.Job.ID)
			default:
				s.fail(&summary, a, "timeout", err)
			}
		}
	}
	return summary, nil
}

func (s *Sweeper) warn(ctx context.Context, a store.ActiveAssignment, v Verdict) error {
	payload := jobPayload(a)
	payload["remaining"] = v.Remaining.Round(time.Minute).String()
	msg := notifications.MustMessage(notifications.TemplateJobTimeoutWarning, a.Job.WorkerID, payload).
		WithDedupKey("warn:" + a.Job.ID)
	_, err := s.repo.EnqueueMessages(ctx, msg)
	return err
}

func (s *Sweeper) timeout(ctx context.Context, a store.ActiveAssignment, v Verdict, now time.Time) error {
	from := orders.AssignedStatus(a.Job.Stage)
	to, ok := orders.RevertStatus(from)
	if !ok {
		return fmt.Errorf("no revert status for %s", from)
	}
	payload := jobPayload(a)
	payload["allowance_hours"] = fmt.Sprintf("%.2f", v.Allowance.Hours())
	template := notifications.TemplateReviewJobTimeout
	if a.Job.Stage == orders.StageQC {
		template = notifications.TemplateQCJobTimeout
	}
	return s.repo.ApplyTransition(ctx, store.Transition{
		OrderID: a.Order.ID,
		Order:   &store.OrderUpdate{From: from, To: to},
		Job: &store.JobUpdate{
			ID:          a.Job.ID,
			From:        orders.JobAccepted,
			To:          orders.JobTimedOut,
			CancelledTs: &now,
		},
		Messages: []notifications.Message{notifications.MustMessage(template, a.Job.WorkerID, payload)},
		At:       now,
	})
}

func (s *Sweeper) fail(summary *Summary, a store.ActiveAssignment, action string, err error) {
	summary.Failed = append(summary.Failed, a.Job.ID)
	logging.WarnWithContext(s.logger, "assignment sweep failed", "reaper_"+action+"_failed",
		logging.String(logging.FieldOrderID, a.Order.ID),
		logging.String(logging.FieldJobID, a.Job.ID),
		logging.Error(err),
		logging.String(logging.FieldImpact, "assignment left as is until the next sweep"),
	)
}

func jobPayload(a store.ActiveAssignment) notifications.Payload {
	return notifications.Payload{
		"filename":  a.File.Filename,
		"file_id":   a.File.ID,
		"order_id":  a.Order.ID,
		"job_id":    a.Job.ID,
		"stage":     string(a.Job.Stage),
		"worker_id": a.Job.WorkerID,
	}
}
