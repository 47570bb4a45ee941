package assignment

import (
	"context"
	"fmt"
	"strings"

	"orderflow/internal/logging"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/store"
)

// CancelRequest cancels or refunds an order.
type CancelRequest struct {
	OrderID string
	Refund  bool
	Reason  string
}

// RequestExtension grants extra SLA time on an ACCEPTED job. Each job gets
// one extension.
func (m *Manager) RequestExtension(ctx context.Context, assignmentID string) (*orders.Job, error) {
	job, err := m.repo.GetJob(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if job.Status != orders.JobAccepted {
		return nil, orders.Wrap(orders.ErrStaleState, "request extension", fmt.Sprintf("job %s is %s", job.ID, job.Status))
	}
	_, file, err := m.loadOrder(ctx, job.OrderID)
	if err != nil {
		return nil, err
	}
	err = m.repo.ApplyTransition(ctx, store.Transition{
		OrderID: job.OrderID,
		Job: &store.JobUpdate{
			ID:               job.ID,
			From:             orders.JobAccepted,
			To:               orders.JobAccepted,
			RequestExtension: true,
		},
		Messages: []notifications.Message{extensionMessage(*job, file)},
		At:       m.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("extension granted",
		logging.String(logging.FieldOrderID, job.OrderID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldWorkerID, job.WorkerID),
	)
	job.ExtensionRequested = true
	return job, nil
}

// ApproveSubmission accepts a diverted QC submission and continues the
// pipeline as if the stage had completed normally.
func (m *Manager) ApproveSubmission(ctx context.Context, orderID string) (*SubmitResult, error) {
	order, file, err := m.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orders.StatusSubmittedForApproval {
		return nil, orders.Wrap(orders.ErrStaleState, "approve", fmt.Sprintf("%s is %s", order.ID, order.Status))
	}
	job, err := m.repo.PendingApprovalJob(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return m.complete(ctx, completion{
		order:     order,
		file:      file,
		job:       job,
		fromOrder: orders.StatusSubmittedForApproval,
		fromJob:   orders.JobSubmittedForApproval,
	})
}

// RejectSubmission refuses a diverted submission. The job is rejected with
// no earnings and the order returns to the stage's ready status.
func (m *Manager) RejectSubmission(ctx context.Context, orderID, comment string) error {
	order, file, err := m.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != orders.StatusSubmittedForApproval {
		return orders.Wrap(orders.ErrStaleState, "reject", fmt.Sprintf("%s is %s", order.ID, order.Status))
	}
	job, err := m.repo.PendingApprovalJob(ctx, order.ID)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	zero := 0.0
	ready := orders.StageReadyStatus(job.Stage)
	err = m.repo.ApplyTransition(ctx, store.Transition{
		OrderID: order.ID,
		Order:   &store.OrderUpdate{From: orders.StatusSubmittedForApproval, To: ready},
		Job: &store.JobUpdate{
			ID:          job.ID,
			From:        orders.JobSubmittedForApproval,
			To:          orders.JobRejected,
			Earnings:    &zero,
			CancelledTs: &now,
			Comment:     strings.TrimSpace(comment),
		},
		Messages: []notifications.Message{rejectedMessage(*job, file, comment)},
		At:       now,
	})
	if err != nil {
		return err
	}
	m.logger.Info("submission rejected",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldWorkerID, job.WorkerID),
	)
	return nil
}

// Deliver moves a PRE_DELIVERED order to DELIVERED and notifies the owner.
func (m *Manager) Deliver(ctx context.Context, orderID, deliveredBy string) (*orders.Order, error) {
	order, file, err := m.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orders.StatusPreDelivered {
		return nil, orders.Wrap(orders.ErrStaleState, "deliver", fmt.Sprintf("%s is %s", order.ID, order.Status))
	}
	now := m.now().UTC()
	update := &store.OrderUpdate{From: orders.StatusPreDelivered, To: orders.StatusDelivered}
	if order.DeliveredTs == nil {
		update.DeliveredTs = &now
		update.DeliveredBy = strings.TrimSpace(deliveredBy)
	}
	err = m.repo.ApplyTransition(ctx, store.Transition{
		OrderID:  order.ID,
		Order:    update,
		Messages: []notifications.Message{deliveredMessage(order, file)},
		At:       now,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("order delivered", logging.String(logging.FieldOrderID, order.ID))
	return m.repo.GetOrder(ctx, order.ID)
}

// Cancel cancels or refunds an order that has not progressed past the
// configured threshold. An active or pending job is cancelled with it.
func (m *Manager) Cancel(ctx context.Context, req CancelRequest) (*orders.Order, error) {
	const op = "cancel"
	order, file, err := m.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, orders.Wrap(orders.ErrCancellationBlocked, op, fmt.Sprintf("%s is already %s", order.ID, order.Status))
	}
	if progress := order.Progress(); progress > m.cfg.Workflow.CancelProgressThreshold {
		return nil, orders.Wrap(orders.ErrCancellationBlocked, op,
			fmt.Sprintf("%s is %d%% complete (limit %d%%)", order.ID, progress, m.cfg.Workflow.CancelProgressThreshold))
	}

	job, err := found(m.repo.AnyActiveJob(ctx, order.ID))
	if err != nil {
		return nil, err
	}
	if job == nil && order.Status == orders.StatusSubmittedForApproval {
		if job, err = found(m.repo.PendingApprovalJob(ctx, order.ID)); err != nil {
			return nil, err
		}
	}

	target := orders.StatusCancelled
	if req.Refund {
		target = orders.StatusRefunded
	}
	now := m.now().UTC()
	t := store.Transition{
		OrderID:  order.ID,
		Order:    &store.OrderUpdate{From: order.Status, To: target},
		Messages: []notifications.Message{cancelledMessage(order, file, req.Refund, req.Reason)},
		At:       now,
	}
	if job != nil {
		t.Job = &store.JobUpdate{
			ID:          job.ID,
			From:        job.Status,
			To:          orders.JobCancelled,
			CancelledTs: &now,
			Comment:     strings.TrimSpace(req.Reason),
		}
		t.Messages = append(t.Messages, unassignedMessage(*job, file, req.Reason))
	}
	if err := m.repo.ApplyTransition(ctx, t); err != nil {
		return nil, err
	}
	m.logger.Info("order cancelled",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String("order_status", string(target)),
		logging.Bool("job_cancelled", job != nil),
	)
	return m.repo.GetOrder(ctx, order.ID)
}

// ReleaseScreening returns a screened order to the status it held before.
// Its escalation wait restarts from the release.
func (m *Manager) ReleaseScreening(ctx context.Context, orderID string) (*orders.Order, error) {
	order, err := m.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orders.StatusSubmittedForScreening {
		return nil, orders.Wrap(orders.ErrStaleState, "release", fmt.Sprintf("%s is %s", order.ID, order.Status))
	}
	target := order.ScreenedFrom
	if target == "" {
		target = orders.InitialStatus(order.Type)
	}
	now := m.now().UTC()
	err = m.repo.ApplyTransition(ctx, store.Transition{
		OrderID: order.ID,
		Order: &store.OrderUpdate{
			From:              orders.StatusSubmittedForScreening,
			To:                target,
			ClearScreenedFrom: true,
			ReleasedTs:        &now,
		},
		At: now,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("order released from screening",
		logging.String(logging.FieldOrderID, order.ID),
		logging.String("order_status", string(target)),
	)
	return m.repo.GetOrder(ctx, order.ID)
}
