package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"orderflow/internal/assignment"
	"orderflow/internal/config"
	"orderflow/internal/escalation"
	"orderflow/internal/logging"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/quality"
	"orderflow/internal/reaper"
	"orderflow/internal/store"
)

const sweepLockWait = 5 * time.Second

// Service exposes engine operations returning API DTOs. The daemon's HTTP
// server and the CLI both go through it.
type Service struct {
	cfg        *config.Config
	store      *store.Store
	manager    *assignment.Manager
	sweeper    *reaper.Sweeper
	monitor    *escalation.Monitor
	dispatcher *notifications.Dispatcher
	sweepLock  *flock.Flock
	sweepMu    sync.Mutex
	logger     *slog.Logger
}

// NewService wires the engine around st. A nil notifier is picked from the
// configuration.
func NewService(cfg *config.Config, st *store.Store, notifier notifications.Service, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Service{
		cfg:     cfg,
		store:   st,
		manager: assignment.NewManager(cfg, st, quality.NewGate(cfg, nil), logger),
		sweeper: reaper.New(cfg, st, logger),
		monitor: escalation.New(cfg, st, logger),
		dispatcher: notifications.NewDispatcher(st, notifier, logger,
			cfg.Workflow.OutboxMaxAttempts, cfg.Workflow.OutboxBatchSize),
		sweepLock: flock.New(cfg.SweepLockPath()),
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// SetClock overrides the clock of every component.
func (s *Service) SetClock(now func() time.Time) {
	s.store.SetClock(now)
	s.manager.SetClock(now)
	s.sweeper.SetClock(now)
	s.monitor.SetClock(now)
	s.dispatcher.SetClock(now)
}

// CreateOrder registers a file and its order.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	orderType := orders.TypeTranscription
	if req.Type != "" {
		orderType = orders.OrderType(req.Type)
	}
	file := orders.File{
		Filename:        req.Filename,
		DurationSeconds: req.DurationSeconds,
	}
	order, err := s.store.CreateOrderWithFile(ctx, file, orders.Order{
		OwnerID:        req.OwnerID,
		OrgName:        req.OrgName,
		Type:           orderType,
		Priority:       req.Priority,
		HighDifficulty: req.HighDifficulty,
		TAT:            req.TAT,
		DeliveryTs:     req.DeliveryTs,
		PWER:           req.PWER,
		RateBonus:      req.RateBonus,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order created",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String("type", string(order.Type)),
	)
	return orderPtr(order), nil
}

// ShowOrder returns an order with its file and jobs.
func (s *Service) ShowOrder(ctx context.Context, id string) (*OrderDetail, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &OrderDetail{Order: FromOrder(order), Jobs: []Job{}}
	if file, err := s.store.GetFile(ctx, order.FileID); err == nil {
		detail.File = FromFile(file)
	} else if !errors.Is(err, orders.ErrFileNotFound) {
		return nil, err
	}
	jobs, err := s.store.ListJobs(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		detail.Jobs = append(detail.Jobs, FromJob(&jobs[i]))
	}
	return detail, nil
}

// ListOrders returns orders filtered by status names and owner.
func (s *Service) ListOrders(ctx context.Context, statuses []string, ownerID string, limit int) ([]Order, error) {
	filter := store.OrderFilter{OwnerID: ownerID, Limit: limit}
	for _, value := range statuses {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := orders.ParseStatus(value)
		if !ok {
			return nil, orders.Wrap(orders.ErrInvalidRequest, "list orders", fmt.Sprintf("unknown status %q", value))
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	list, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromOrders(list), nil
}

// ListWork returns the ranked orders a worker may accept for a stage.
func (s *Service) ListWork(ctx context.Context, workerID, stage string) ([]Order, error) {
	if strings.TrimSpace(workerID) == "" {
		return nil, orders.Wrap(orders.ErrInvalidRequest, "list work", "worker is required")
	}
	parsed, ok := orders.ParseStage(stage)
	if !ok {
		return nil, orders.Wrap(orders.ErrInvalidRequest, "list work", fmt.Sprintf("unknown stage %q", stage))
	}
	list, err := s.manager.ListEligibleWork(ctx, workerID, parsed)
	if err != nil {
		return nil, err
	}
	return FromOrders(list), nil
}

// Accept claims an order stage for a worker.
func (s *Service) Accept(ctx context.Context, orderID string, req AcceptRequest) (ActionResponse, error) {
	if err := Validate(req); err != nil {
		return ActionResponse{}, err
	}
	job, err := s.manager.Accept(ctx, orderID, orders.Stage(req.Stage), req.WorkerID)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{Success: true, Message: "assignment accepted", Job: jobPtr(job)}, nil
}

// Submit hands in work for a stage.
func (s *Service) Submit(ctx context.Context, orderID string, req SubmitRequest) (ActionResponse, error) {
	if err := Validate(req); err != nil {
		return ActionResponse{}, err
	}
	result, err := s.manager.Submit(ctx, assignment.SubmitRequest{
		OrderID:  orderID,
		Stage:    orders.Stage(req.Stage),
		WorkerID: req.WorkerID,
		Submission: quality.Submission{
			Score:        req.Score,
			Earnings:     req.Earnings,
			Comment:      req.Comment,
			Deliverables: req.Deliverables,
		},
	})
	if err != nil {
		return ActionResponse{}, err
	}
	resp := ActionResponse{
		Success:  true,
		Message:  "submission completed",
		Order:    orderPtr(result.Order),
		Handoff:  jobPtr(result.Handoff),
		Diverted: result.Diverted,
	}
	if result.Decision.Scored {
		score := result.Decision.Score
		resp.Score = &score
	}
	if result.Diverted {
		resp.Message = "submission held for approval: " + result.Decision.Detail
	}
	return resp, nil
}

// Extend grants the one-time SLA extension on a job.
func (s *Service) Extend(ctx context.Context, jobID string) (ActionResponse, error) {
	job, err := s.manager.RequestExtension(ctx, jobID)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{Success: true, Message: "extension granted", Job: jobPtr(job)}, nil
}

// Approve accepts a diverted submission.
func (s *Service) Approve(ctx context.Context, orderID string) (ActionResponse, error) {
	result, err := s.manager.ApproveSubmission(ctx, orderID)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{
		Success: true,
		Message: "submission approved",
		Order:   orderPtr(result.Order),
		Handoff: jobPtr(result.Handoff),
	}, nil
}

// Reject returns a diverted submission to the queue.
func (s *Service) Reject(ctx context.Context, orderID string, req RejectRequest) (ActionResponse, error) {
	if err := Validate(req); err != nil {
		return ActionResponse{}, err
	}
	if err := s.manager.RejectSubmission(ctx, orderID, req.Comment); err != nil {
		return ActionResponse{}, err
	}
	return s.orderAction(ctx, orderID, "submission rejected")
}

// Deliver releases a finished order to its owner.
func (s *Service) Deliver(ctx context.Context, orderID string, req DeliverRequest) (ActionResponse, error) {
	if err := Validate(req); err != nil {
		return ActionResponse{}, err
	}
	order, err := s.manager.Deliver(ctx, orderID, req.DeliveredBy)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{Success: true, Message: "order delivered", Order: orderPtr(order)}, nil
}

// Cancel cancels or refunds an order.
func (s *Service) Cancel(ctx context.Context, orderID string, req CancelRequest) (ActionResponse, error) {
	if err := Validate(req); err != nil {
		return ActionResponse{}, err
	}
	order, err := s.manager.Cancel(ctx, assignment.CancelRequest{OrderID: orderID, Refund: req.Refund, Reason: req.Reason})
	if err != nil {
		return ActionResponse{}, err
	}
	message := "order cancelled"
	if req.Refund {
		message = "order refunded"
	}
	return ActionResponse{Success: true, Message: message, Order: orderPtr(order)}, nil
}

// Release returns a screened order to the queue.
func (s *Service) Release(ctx context.Context, orderID string) (ActionResponse, error) {
	order, err := s.manager.ReleaseScreening(ctx, orderID)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{Success: true, Message: "order released from screening", Order: orderPtr(order)}, nil
}

// Reassign moves an active job to another worker.
func (s *Service) Reassign(ctx context.Context, orderID string, req ReassignRequest) (ActionResponse, error) {
	if err := Validate(req); err != nil {
		return ActionResponse{}, err
	}
	job, err := s.manager.Reassign(ctx, assignment.ReassignRequest{
		OrderID:          orderID,
		AssignmentID:     req.AssignmentID,
		NewWorkerID:      req.NewWorkerID,
		Reason:           req.Reason,
		PreserveEarnings: req.PreserveEarnings,
	})
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{Success: true, Message: "assignment moved to " + job.WorkerID, Job: jobPtr(job)}, nil
}

// Unassign removes a worker from an active job.
func (s *Service) Unassign(ctx context.Context, orderID string, req UnassignRequest) (ActionResponse, error) {
	if err := Validate(req); err != nil {
		return ActionResponse{}, err
	}
	jobStatus := orders.JobCancelled
	if req.Reject {
		jobStatus = orders.JobRejected
	}
	err := s.manager.Unassign(ctx, assignment.UnassignRequest{
		OrderID:      orderID,
		AssignmentID: req.AssignmentID,
		JobStatus:    jobStatus,
		Reason:       req.Reason,
	})
	if err != nil {
		return ActionResponse{}, err
	}
	return s.orderAction(ctx, orderID, "assignment removed")
}

func (s *Service) orderAction(ctx context.Context, orderID, message string) (ActionResponse, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return ActionResponse{}, err
	}
	return ActionResponse{Success: true, Message: message, Order: orderPtr(order)}, nil
}

// RunTimeoutSweep runs the SLA reaper under the sweep lock.
func (s *Service) RunTimeoutSweep(ctx context.Context) (TimeoutSweepResponse, error) {
	var resp TimeoutSweepResponse
	err := s.withSweepLock(ctx, func() error {
		summary, err := s.sweeper.RunTimeoutSweep(ctx)
		resp = FromTimeoutSummary(summary)
		return err
	})
	return resp, err
}

// RunEscalation runs the escalation monitor under the sweep lock.
func (s *Service) RunEscalation(ctx context.Context) (EscalationResponse, error) {
	var resp EscalationResponse
	err := s.withSweepLock(ctx, func() error {
		summary, err := s.monitor.RunEscalation(ctx)
		resp = FromEscalationSummary(summary)
		return err
	})
	return resp, err
}

// DispatchOutbox delivers due notifications under the sweep lock.
func (s *Service) DispatchOutbox(ctx context.Context) (DispatchResponse, error) {
	var resp DispatchResponse
	err := s.withSweepLock(ctx, func() error {
		result, err := s.dispatcher.DispatchOnce(ctx)
		resp = FromDispatchResult(result)
		return err
	})
	return resp, err
}

// ListOutbox returns outbox rows, optionally filtered by status.
func (s *Service) ListOutbox(ctx context.Context, status string, limit int) ([]OutboxEntry, error) {
	switch status {
	case "", store.OutboxPending, store.OutboxSent, store.OutboxFailed:
	default:
		return nil, orders.Wrap(orders.ErrInvalidRequest, "list outbox", fmt.Sprintf("unknown status %q", status))
	}
	entries, err := s.store.ListOutbox(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	out := make([]OutboxEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromOutboxEntry(entry))
	}
	return out, nil
}

// RetryDeadMessages requeues notifications that exhausted their attempts.
func (s *Service) RetryDeadMessages(ctx context.Context) (int64, error) {
	return s.store.RetryDeadMessages(ctx)
}

// Status reports order counts, outbox counts and database health.
func (s *Service) Status(ctx context.Context) (StatusResponse, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return StatusResponse{}, err
	}
	health, err := s.store.Health(ctx)
	if err != nil {
		return StatusResponse{}, err
	}
	outbox, err := s.store.OutboxCounts(ctx)
	if err != nil {
		return StatusResponse{}, err
	}
	db, err := s.store.CheckHealth(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "database health check failed", "db_health_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status reports partial database diagnostics"),
		)
	}
	return StatusResponse{
		Orders:   StatusCounts(stats),
		Health:   FromHealth(health),
		Outbox:   outbox,
		Database: FromDatabaseHealth(db),
	}, nil
}

// withSweepLock serializes sweeps within the process and, through the
// lock file, against other orderflow processes.
func (s *Service) withSweepLock(ctx context.Context, fn func() error) error {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, sweepLockWait)
	defer cancel()
	ok, err := s.sweepLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return orders.Wrap(orders.ErrSweepInProgress, "sweep", s.sweepLock.Path())
	}
	defer func() {
		if err := s.sweepLock.Unlock(); err != nil {
			s.logger.Warn("failed to release sweep lock", logging.Error(err))
		}
	}()
	return fn()
}
