package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/config"
	"orderflow/internal/logging"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/quality"
	"orderflow/internal/store"
	"orderflow/internal/workqueue"
)

// Repository is the persistence the manager needs. *store.Store satisfies it.
type Repository interface {
	workqueue.Source

	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	GetFile(ctx context.Context, id string) (*orders.File, error)
	GetJob(ctx context.Context, id string) (*orders.Job, error)
	ListJobs(ctx context.Context, orderID string) ([]orders.Job, error)
	ActiveJob(ctx context.Context, orderID string, stage orders.Stage) (*orders.Job, error)
	AnyActiveJob(ctx context.Context, orderID string) (*orders.Job, error)
	PendingApprovalJob(ctx context.Context, orderID string) (*orders.Job, error)
	WorkerActiveJob(ctx context.Context, workerID string) (*orders.Job, error)
	HasCompletedStage(ctx context.Context, orderID string, stage orders.Stage) (bool, error)
	ApplyTransition(ctx context.Context, t store.Transition) error
}

// Manager applies assignment operations.
type Manager struct {
	cfg    *config.Config
	repo   Repository
	gate   *quality.Gate
	queue  *workqueue.Prioritizer
	logger *slog.Logger
	now    func() time.Time
}

// NewManager wires a manager. A nil gate reads quality scores from
// submissions.
func NewManager(cfg *config.Config, repo Repository, gate *quality.Gate, logger *slog.Logger) *Manager {
	if gate == nil {
		gate = quality.NewGate(cfg, nil)
	}
	return &Manager{
		cfg:    cfg,
		repo:   repo,
		gate:   gate,
		queue:  workqueue.New(cfg, repo, logger),
		logger: logging.NewComponentLogger(logger, "assignment"),
		now:    time.Now,
	}
}

// SetClock overrides the clock used for assignment timestamps.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
		m.queue.SetClock(now)
	}
}

// AssignRequest describes a new assignment.
type AssignRequest struct {
	OrderID   string
	Stage     orders.Stage
	WorkerID  string
	InputFile orders.InputKind
	Mode      orders.AssignMode
	// ICQC marks an in-house quality check; it bypasses the worker's
	// cancelled/rejected history for the order.
	ICQC bool
}

// ListEligibleWork returns the ranked orders a worker may accept for stage.
func (m *Manager) ListEligibleWork(ctx context.Context, workerID string, stage orders.Stage) ([]orders.Order, error) {
	return m.queue.ListEligibleWork(ctx, workerID, stage)
}

// Accept assigns stage of an order to a worker picking it from the queue.
func (m *Manager) Accept(ctx context.Context, orderID string, stage orders.Stage, workerID string) (*orders.Job, error) {
	order, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !m.queue.Eligible(workerID, *order) {
		return nil, orders.Wrap(orders.ErrAssignmentConflict, "accept",
			fmt.Sprintf("worker %s is not eligible for order %s", workerID, orderID))
	}
	return m.Assign(ctx, AssignRequest{
		OrderID:   orderID,
		Stage:     stage,
		WorkerID:  workerID,
		InputFile: orders.DefaultInput(stage),
		Mode:      orders.AssignAuto,
	})
}

// Assign creates an ACCEPTED job for the order stage and moves the order to
// the stage's assigned status.
func (m *Manager) Assign(ctx context.Context, req AssignRequest) (*orders.Job, error) {
	const op = "assign"
	req.WorkerID = strings.TrimSpace(req.WorkerID)
	if req.WorkerID == "" {
		return nil, orders.Wrap(orders.ErrInvalidRequest, op, "worker is required")
	}
	if _, ok := orders.ParseStage(string(req.Stage)); !ok {
		return nil, orders.Wrap(orders.ErrInvalidRequest, op, fmt.Sprintf("unknown stage %q", req.Stage))
	}
	if req.Mode == "" {
		req.Mode = orders.AssignAuto
	}
	if req.InputFile == "" {
		req.InputFile = orders.DefaultInput(req.Stage)
	}

	order, err := m.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !orders.HasStage(order.Type, req.Stage) {
		return nil, orders.Wrap(orders.ErrUnsupportedOrderType, op,
			fmt.Sprintf("%s orders have no %s stage", order.Type, req.Stage))
	}
	if held, err := found(m.repo.ActiveJob(ctx, order.ID, req.Stage)); err != nil {
		return nil, err
	} else if held != nil {
		return nil, orders.Wrap(orders.ErrAssignmentConflict, op,
			fmt.Sprintf("%s %s is held by %s", order.ID, req.Stage, held.WorkerID))
	}
	if err := m.checkWorkerCanTake(ctx, op, req.WorkerID, order.ID, req.Stage, req.ICQC); err != nil {
		return nil, err
	}
	reviewed, err := m.repo.HasCompletedStage(ctx, order.ID, orders.StageReview)
	if err != nil {
		return nil, err
	}
	if !orders.IsReady(req.Stage, order.Status, reviewed) {
		return nil, orders.Wrap(orders.ErrStaleState, op,
			fmt.Sprintf("%s is %s, not ready for %s", order.ID, order.Status, req.Stage))
	}

	file, err := m.repo.GetFile(ctx, order.FileID)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	job := orders.Job{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		Stage:      req.Stage,
		WorkerID:   req.WorkerID,
		InputFile:  req.InputFile,
		Status:     orders.JobAccepted,
		AssignMode: req.Mode,
		AcceptedTs: now,
		IsICQC:     req.ICQC,
	}
	err = m.repo.ApplyTransition(ctx, store.Transition{
		OrderID:  order.ID,
		Order:    &store.OrderUpdate{From: order.Status, To: orders.AssignedStatus(req.Stage)},
		NewJob:   &job,
		Messages: []notifications.Message{assignedMessage(job, file)},
		At:       now,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("job assigned",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldWorkerID, job.WorkerID),
		logging.String(logging.FieldStage, string(job.Stage)),
		logging.String("mode", string(job.AssignMode)),
	)
	return &job, nil
}

// found turns a not-found lookup into (nil, nil).
// checkWorkerCanTake rejects a worker who already holds a job or who
// previously left this order's stage. IC QC work skips the exclusion.
func (m *Manager) checkWorkerCanTake(ctx context.Context, op, workerID, orderID string, stage orders.Stage, icqc bool) error {
	if busy, err := found(m.repo.WorkerActiveJob(ctx, workerID)); err != nil {
		return err
	} else if busy != nil {
		return orders.Wrap(orders.ErrAssignmentConflict, op,
			fmt.Sprintf("worker %s already holds job %s", workerID, busy.ID))
	}
	if icqc {
		return nil
	}
	excluded, err := m.repo.ExcludedOrderIDs(ctx, workerID, stage)
	if err != nil {
		return err
	}
	if _, ok := excluded[orderID]; ok {
		return orders.Wrap(orders.ErrAssignmentConflict, op,
			fmt.Sprintf("worker %s previously left %s %s", workerID, orderID, stage))
	}
	return nil
}

func found(job *orders.Job, err error) (*orders.Job, error) {
	if errors.Is(err, orders.ErrAssignmentNotFound) {
		return nil, nil
	}
	return job, err
}

// loadOrder fetches an order and its file.
func (m *Manager) loadOrder(ctx context.Context, orderID string) (*orders.Order, *orders.File, error) {
	order, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	file, err := m.repo.GetFile(ctx, order.FileID)
	if err != nil {
		return nil, nil, err
	}
	return order, file, nil
}

// workerJob returns the worker's ACCEPTED job for the order stage. A job that
// existed but has moved on is reported as stale.
func (m *Manager) workerJob(ctx context.Context, orderID string, stage orders.Stage, workerID string) (*orders.Job, error) {
	jobs, err := m.repo.ListJobs(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var latest *orders.Job
	for i := range jobs {
		job := &jobs[i]
		if job.Stage != stage || job.WorkerID != workerID {
			continue
		}
		if job.Status == orders.JobAccepted {
			return job, nil
		}
		latest = job
	}
	if latest != nil {
		return nil, orders.Wrap(orders.ErrStaleState, "find job",
			fmt.Sprintf("%s job %s is %s", stage, latest.ID, latest.Status))
	}
	return nil, orders.Wrap(orders.ErrAssignmentNotFound, "find job",
		fmt.Sprintf("%s has no %s job for %s", orderID, stage, workerID))
}
