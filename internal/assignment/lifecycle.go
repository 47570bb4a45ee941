package assignment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"orderflow/internal/logging"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/quality"
	"orderflow/internal/store"
)

// UnassignRequest removes a worker from an ACCEPTED job.
type UnassignRequest struct {
	OrderID      string
	AssignmentID string
	// RevertStatus is where the order goes back to. Empty uses the revert
	// table for the job's stage.
	RevertStatus orders.Status
	// JobStatus is CANCELLED (default) or REJECTED.
	JobStatus orders.JobStatus
	Reason    string
}

// ReassignRequest moves an ACCEPTED job to another worker.
type ReassignRequest struct {
	OrderID          string
	AssignmentID     string
	NewWorkerID      string
	Reason           string
	PreserveEarnings bool
}

// SubmitRequest hands in work for a stage.
type SubmitRequest struct {
	OrderID  string
	Stage    orders.Stage
	WorkerID string
	quality.Submission
}

// SubmitResult reports where a submission left the order.
type SubmitResult struct {
	Order    *orders.Order
	JobID    string
	Diverted bool
	Decision quality.Decision
	// Handoff is the follow-on job assigned to the same worker, if any.
	Handoff *orders.Job
}

// Unassign cancels or rejects an ACCEPTED job and reverts the order.
func (m *Manager) Unassign(ctx context.Context, req UnassignRequest) error {
	const op = "unassign"
	job, err := m.repo.GetJob(ctx, req.AssignmentID)
	if err != nil {
		return err
	}
	if job.OrderID != req.OrderID {
		return orders.Wrap(orders.ErrAssignmentNotFound, op,
			fmt.Sprintf("job %s does not belong to order %s", job.ID, req.OrderID))
	}
	if job.Status != orders.JobAccepted {
		return orders.Wrap(orders.ErrStaleState, op, fmt.Sprintf("job %s is %s", job.ID, job.Status))
	}
	jobStatus := req.JobStatus
	switch jobStatus {
	case "":
		jobStatus = orders.JobCancelled
	case orders.JobCancelled, orders.JobRejected:
	default:
		return orders.Wrap(orders.ErrInvalidRequest, op, fmt.Sprintf("job status %q", jobStatus))
	}

	order, file, err := m.loadOrder(ctx, req.OrderID)
	if err != nil {
		return err
	}
	from := orders.AssignedStatus(job.Stage)
	revert := req.RevertStatus
	if revert == "" {
		revert, _ = orders.RevertStatus(from)
	}

	now := m.now().UTC()
	err = m.repo.ApplyTransition(ctx, store.Transition{
		OrderID: order.ID,
		Order:   &store.OrderUpdate{From: from, To: revert},
		Job: &store.JobUpdate{
			ID:          job.ID,
			From:        orders.JobAccepted,
			To:          jobStatus,
			CancelledTs: &now,
			Comment:     strings.TrimSpace(req.Reason),
		},
		Messages: []notifications.Message{unassignedMessage(*job, file, req.Reason)},
		At:       now,
	})
	if err != nil {
		return err
	}
	m.logger.Info("job unassigned",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldWorkerID, job.WorkerID),
		logging.String("job_status", string(jobStatus)),
		logging.String("order_status", string(revert)),
	)
	return nil
}

// Reassign cancels the current job and assigns its stage to another worker
// in MANUAL mode. The cancellation and the new job commit together, so a
// worker who cannot take the job leaves the original assignment in place.
func (m *Manager) Reassign(ctx context.Context, req ReassignRequest) (*orders.Job, error) {
	const op = "reassign"
	req.NewWorkerID = strings.TrimSpace(req.NewWorkerID)
	if req.NewWorkerID == "" {
		return nil, orders.Wrap(orders.ErrInvalidRequest, op, "new worker is required")
	}
	old, err := m.repo.GetJob(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	if old.OrderID != req.OrderID {
		return nil, orders.Wrap(orders.ErrAssignmentNotFound, op,
			fmt.Sprintf("job %s does not belong to order %s", old.ID, req.OrderID))
	}
	if old.Status != orders.JobAccepted {
		return nil, orders.Wrap(orders.ErrStaleState, op, fmt.Sprintf("job %s is %s", old.ID, old.Status))
	}
	if old.WorkerID == req.NewWorkerID {
		return nil, orders.Wrap(orders.ErrInvalidRequest, op,
			fmt.Sprintf("worker %s already holds job %s", old.WorkerID, old.ID))
	}
	order, file, err := m.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if err := m.checkWorkerCanTake(ctx, op, req.NewWorkerID, order.ID, old.Stage, old.IsICQC); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	cancel := &store.JobUpdate{
		ID:          old.ID,
		From:        orders.JobAccepted,
		To:          orders.JobCancelled,
		CancelledTs: &now,
		Comment:     strings.TrimSpace(req.Reason),
	}
	if !req.PreserveEarnings {
		zero := 0.0
		cancel.Earnings = &zero
	}
	job := orders.Job{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		Stage:      old.Stage,
		WorkerID:   req.NewWorkerID,
		InputFile:  old.InputFile,
		Status:     orders.JobAccepted,
		AssignMode: orders.AssignManual,
		AcceptedTs: now,
		IsICQC:     old.IsICQC,
	}
	err = m.repo.ApplyTransition(ctx, store.Transition{
		OrderID: order.ID,
		Job:     cancel,
		NewJob:  &job,
		Messages: []notifications.Message{
			unassignedMessage(*old, file, req.Reason),
			assignedMessage(job, file),
		},
		At: now,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("job reassigned",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("previous_job_id", old.ID),
		logging.String("previous_worker_id", old.WorkerID),
		logging.String(logging.FieldWorkerID, job.WorkerID),
		logging.String(logging.FieldStage, string(job.Stage)),
	)
	return &job, nil
}

// Complete marks the worker's job for the stage COMPLETED and advances the
// order, bypassing the quality gate.
func (m *Manager) Complete(ctx context.Context, orderID string, stage orders.Stage, workerID string, earnings float64) (*SubmitResult, error) {
	order, file, err := m.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	job, err := m.workerJob(ctx, order.ID, stage, workerID)
	if err != nil {
		return nil, err
	}
	return m.complete(ctx, completion{
		order:     order,
		file:      file,
		job:       job,
		fromOrder: orders.AssignedStatus(stage),
		fromJob:   orders.JobAccepted,
		earnings:  &earnings,
		stampTime: true,
	})
}

// Submit hands in work. QC passes through the quality gate and FINALIZE
// through deliverable validation before the stage completes.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if _, ok := orders.ParseStage(string(req.Stage)); !ok {
		return nil, orders.Wrap(orders.ErrInvalidRequest, "submit", fmt.Sprintf("unknown stage %q", req.Stage))
	}
	order, file, err := m.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	job, err := m.workerJob(ctx, order.ID, req.Stage, req.WorkerID)
	if err != nil {
		return nil, err
	}

	switch req.Stage {
	case orders.StageQC:
		decision, err := m.gate.Evaluate(ctx, *order, *job, req.Submission)
		if err != nil {
			logging.ErrorWithContext(m.logger, "quality scoring failed", "quality_score_failed",
				logging.String(logging.FieldOrderID, order.ID),
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "retry the submission once the scorer is reachable"),
			)
			return nil, err
		}
		if decision.Divert {
			return m.divert(ctx, order, file, job, req, decision)
		}
		result, err := m.complete(ctx, completion{
			order: order, file: file, job: job,
			fromOrder: orders.StatusQCAssigned, fromJob: orders.JobAccepted,
			earnings: &req.Earnings, comment: req.Comment, stampTime: true,
		})
		if result != nil {
			result.Decision = decision
		}
		return result, err
	case orders.StageFinalize:
		if err := quality.ValidateDeliverables(quality.RulesFor(m.cfg, order.OwnerID), req.Deliverables); err != nil {
			return nil, err
		}
	}
	return m.complete(ctx, completion{
		order: order, file: file, job: job,
		fromOrder: orders.AssignedStatus(req.Stage), fromJob: orders.JobAccepted,
		earnings: &req.Earnings, comment: req.Comment, stampTime: true,
	})
}

func (m *Manager) divert(ctx context.Context, order *orders.Order, file *orders.File, job *orders.Job, req SubmitRequest, decision quality.Decision) (*SubmitResult, error) {
	now := m.now().UTC()
	earnings := req.Earnings
	err := m.repo.ApplyTransition(ctx, store.Transition{
		OrderID: order.ID,
		Order: &store.OrderUpdate{
			From:          orders.StatusQCAssigned,
			To:            orders.StatusSubmittedForApproval,
			ReportMode:    orders.ReportAuto,
			ReportOption:  decision.ReportOption,
			ReportComment: decision.Detail,
		},
		Job: &store.JobUpdate{
			ID:          job.ID,
			From:        orders.JobAccepted,
			To:          orders.JobSubmittedForApproval,
			Earnings:    &earnings,
			CompletedTs: &now,
			Comment:     req.Comment,
		},
		Messages: []notifications.Message{
			approvalMessage(m.approvalRecipient(), *job, file, decision.Score),
		},
		At: now,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("submission diverted for approval",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String(logging.FieldJobID, job.ID),
		logging.Float64("score", decision.Score),
		logging.String("report_option", string(decision.ReportOption)),
	)
	updated, err := m.repo.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Order: updated, JobID: job.ID, Diverted: true, Decision: decision}, nil
}

type completion struct {
	order     *orders.Order
	file      *orders.File
	job       *orders.Job
	fromOrder orders.Status
	fromJob   orders.JobStatus
	earnings  *float64
	comment   string
	stampTime bool
}

// complete commits the stage completion and runs the hand-off.
func (m *Manager) complete(ctx context.Context, c completion) (*SubmitResult, error) {
	now := m.now().UTC()
	stage := c.job.Stage
	jobUpdate := &store.JobUpdate{
		ID:       c.job.ID,
		From:     c.fromJob,
		To:       orders.JobCompleted,
		Earnings: c.earnings,
		Comment:  strings.TrimSpace(c.comment),
	}
	if c.stampTime {
		jobUpdate.CompletedTs = &now
	}
	t := store.Transition{
		OrderID:  c.order.ID,
		Order:    &store.OrderUpdate{From: c.fromOrder, To: orders.CompletedStatus(stage)},
		Job:      jobUpdate,
		Messages: []notifications.Message{submitMessage(*c.job, c.file)},
		At:       now,
	}
	switch {
	case stage == orders.StageQC && c.order.Type == orders.TypeTranscription:
		t.Then = &store.OrderUpdate{From: orders.StatusQCCompleted, To: orders.StatusPreDelivered}
	case stage == orders.StageFinalize:
		t.Order.FinalizerComment = strings.TrimSpace(c.comment)
		t.Then = &store.OrderUpdate{
			From:        orders.StatusFinalizingCompleted,
			To:          orders.StatusPreDelivered,
			DeliveredTs: &now,
			DeliveredBy: c.job.WorkerID,
		}
	}
	if err := m.repo.ApplyTransition(ctx, t); err != nil {
		return nil, err
	}
	m.logger.Info("job completed",
		logging.String(logging.FieldOrderID, c.order.ID),
		logging.String(logging.FieldJobID, c.job.ID),
		logging.String(logging.FieldWorkerID, c.job.WorkerID),
		logging.String(logging.FieldStage, string(stage)),
	)

	result := &SubmitResult{JobID: c.job.ID}
	if next, input, ok := m.handoffStage(c.order.Type, stage); ok {
		handoff, err := m.Assign(ctx, AssignRequest{
			OrderID:   c.order.ID,
			Stage:     next,
			WorkerID:  c.job.WorkerID,
			InputFile: input,
			Mode:      orders.AssignAuto,
		})
		if err != nil {
			logging.WarnWithContext(m.logger, "hand-off assignment failed", "handoff_failed",
				logging.String(logging.FieldOrderID, c.order.ID),
				logging.String(logging.FieldWorkerID, c.job.WorkerID),
				logging.String(logging.FieldStage, string(next)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "order stays in the work queue for "+string(next)),
			)
		} else {
			result.Handoff = handoff
		}
	}

	updated, err := m.repo.GetOrder(ctx, c.order.ID)
	if err != nil {
		return nil, err
	}
	result.Order = updated
	return result, nil
}

func (m *Manager) handoffStage(orderType orders.OrderType, completed orders.Stage) (orders.Stage, orders.InputKind, bool) {
	switch {
	case completed == orders.StageQC && orderType == orders.TypeTranscriptionFormatting:
		return orders.StageReview, orders.InputQCOutput, true
	case completed == orders.StageReview && m.cfg.Workflow.HandoffFinalize:
		return orders.StageFinalize, orders.InputReviewOutput, true
	default:
		return "", "", false
	}
}

func (m *Manager) approvalRecipient() string {
	if r := strings.TrimSpace(m.cfg.Quality.ApprovalRecipient); r != "" {
		return r
	}
	if r := strings.TrimSpace(m.cfg.Escalation.OpsRecipient); r != "" {
		return r
	}
	return "ops"
}
