package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/notifications"
	"orderflow/internal/orders"
)

// OrderUpdate moves an order from one status to another. Optional fields
// are written only when set.
type OrderUpdate struct {
	From orders.Status
	To   orders.Status

	ReportMode    orders.ReportMode
	ReportOption  orders.ReportOption
	ReportComment string

	IncrementScreenCount bool
	ScreenedFrom         orders.Status
	ClearScreenedFrom    bool

	FinalizerComment string
	DeliveredTs      *time.Time
	DeliveredBy      string
	ReleasedTs       *time.Time
}

// JobUpdate moves a job from one status to another. When From equals To
// the update only touches the optional fields.
type JobUpdate struct {
	ID   string
	From orders.JobStatus
	To   orders.JobStatus

	Earnings         *float64
	CompletedTs      *time.Time
	CancelledTs      *time.Time
	Comment          string
	RequestExtension bool
}

// Transition is one atomic state change: an order CAS, a job CAS, a new job,
// and the notifications it causes. Any failure rolls back everything.
type Transition struct {
	OrderID  string
	Order    *OrderUpdate
	// Then is a second order step applied after Order in the same
	// transaction, for hand-offs that pass through an intermediate status.
	Then     *OrderUpdate
	Job      *JobUpdate
	NewJob   *orders.Job
	Messages []notifications.Message
	At       time.Time
}

// ApplyTransition commits t atomically.
//
// Errors:
//   - ErrOrderNotFound / ErrAssignmentNotFound when the rows do not exist.
//   - ErrStaleState when the order or job is no longer in the expected status.
//   - ErrInvalidTransition when the order edge is not legal.
//   - ErrAssignmentConflict when NewJob collides with an ACCEPTED job for
//     the same order stage or the worker already holds one.
func (s *Store) ApplyTransition(ctx context.Context, t Transition) error {
	for _, step := range []*OrderUpdate{t.Order, t.Then} {
		if step != nil && !orders.CanTransition(step.From, step.To) {
			return orders.Wrap(orders.ErrInvalidTransition, "apply transition",
				fmt.Sprintf("%s -> %s", step.From, step.To))
		}
	}
	at := t.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	return s.withTx(ctx, func(tx *txn) error {
		if t.Job != nil {
			if err := updateJob(ctx, tx, *t.Job); err != nil {
				return err
			}
		}
		for _, step := range []*OrderUpdate{t.Order, t.Then} {
			if step == nil {
				continue
			}
			if err := updateOrder(ctx, tx, t.OrderID, *step, at); err != nil {
				return err
			}
		}
		if t.NewJob != nil {
			if err := s.insertJob(ctx, tx, t.OrderID, *t.NewJob); err != nil {
				return err
			}
		}
		_, err := insertMessages(ctx, tx, t.Messages, at)
		return err
	})
}

// EnqueueMessages writes messages to the outbox outside any state change.
// Messages whose dedup key was already used are skipped; the number written
// is returned.
func (s *Store) EnqueueMessages(ctx context.Context, msgs ...notifications.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	var written int
	err := s.withTx(ctx, func(tx *txn) error {
		n, err := insertMessages(ctx, tx, msgs, s.now().UTC())
		written = n
		return err
	})
	return written, err
}

func updateOrder(ctx context.Context, tx *txn, orderID string, u OrderUpdate, at time.Time) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(u.To), formatTime(at)}
	if u.ReportMode != "" {
		sets = append(sets, "report_mode = ?", "report_option = ?", "report_comment = ?")
		args = append(args, string(u.ReportMode), string(u.ReportOption), u.ReportComment)
	} else if u.ReportOption != "" {
		sets = append(sets, "report_option = ?")
		args = append(args, string(u.ReportOption))
	}
	if u.IncrementScreenCount {
		sets = append(sets, "screen_count = screen_count + 1")
	}
	switch {
	case u.ScreenedFrom != "":
		sets = append(sets, "screened_from = ?")
		args = append(args, string(u.ScreenedFrom))
	case u.ClearScreenedFrom:
		sets = append(sets, "screened_from = ''")
	}
	if u.FinalizerComment != "" {
		sets = append(sets, "finalizer_comment = ?")
		args = append(args, u.FinalizerComment)
	}
	if u.DeliveredTs != nil {
		sets = append(sets, "delivered_ts = ?", "delivered_by = ?")
		args = append(args, formatTime(*u.DeliveredTs), u.DeliveredBy)
	}
	if u.ReleasedTs != nil {
		sets = append(sets, "released_ts = ?")
		args = append(args, formatTime(*u.ReleasedTs))
	}
	args = append(args, orderID, string(u.From))

	res, err := tx.exec(ctx, `UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows: %w", err)
	}
	if affected > 0 {
		return nil
	}
	exists, err := tx.count(ctx, `SELECT COUNT(1) FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if exists == 0 {
		return orders.Wrap(orders.ErrOrderNotFound, "update order", orderID)
	}
	return orders.Wrap(orders.ErrStaleState, "update order",
		fmt.Sprintf("%s is no longer %s", orderID, u.From))
}

func updateJob(ctx context.Context, tx *txn, u JobUpdate) error {
	sets := []string{"status = ?"}
	args := []any{string(u.To)}
	if u.Earnings != nil {
		sets = append(sets, "earnings = ?")
		args = append(args, *u.Earnings)
	}
	if u.CompletedTs != nil {
		sets = append(sets, "completed_ts = ?")
		args = append(args, formatTime(*u.CompletedTs))
	}
	if u.CancelledTs != nil {
		sets = append(sets, "cancelled_ts = ?")
		args = append(args, formatTime(*u.CancelledTs))
	}
	if u.Comment != "" {
		sets = append(sets, "comment = ?")
		args = append(args, u.Comment)
	}
	where := "id = ? AND status = ?"
	if u.RequestExtension {
		sets = append(sets, "extension_requested = 1")
		where += " AND extension_requested = 0"
	}
	args = append(args, u.ID, string(u.From))

	res, err := tx.exec(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE `+where, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job rows: %w", err)
	}
	if affected > 0 {
		return nil
	}
	exists, err := tx.count(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, u.ID)
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if exists == 0 {
		return orders.Wrap(orders.ErrAssignmentNotFound, "update job", u.ID)
	}
	return orders.Wrap(orders.ErrStaleState, "update job",
		fmt.Sprintf("%s is no longer %s", u.ID, u.From))
}

func (s *Store) insertJob(ctx context.Context, tx *txn, orderID string, job orders.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.OrderID = orderID
	if job.Status == "" {
		job.Status = orders.JobAccepted
	}

	if job.Status == orders.JobAccepted {
		n, err := tx.count(ctx,
			`SELECT COUNT(1) FROM jobs WHERE order_id = ? AND type = ? AND status = 'ACCEPTED'`,
			orderID, string(job.Stage))
		if err != nil {
			return fmt.Errorf("check stage assignment: %w", err)
		}
		if n > 0 {
			return orders.Wrap(orders.ErrAssignmentConflict, "assign",
				fmt.Sprintf("%s already has an accepted %s job", orderID, job.Stage))
		}
		n, err = tx.count(ctx,
			`SELECT COUNT(1) FROM jobs WHERE transcriber_id = ? AND status = 'ACCEPTED'`, job.WorkerID)
		if err != nil {
			return fmt.Errorf("check worker assignment: %w", err)
		}
		if n > 0 {
			return orders.Wrap(orders.ErrAssignmentConflict, "assign",
				fmt.Sprintf("worker %s already holds an accepted job", job.WorkerID))
		}
	}

	_, err := tx.exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (`+placeholders(14)+`)`,
		job.ID, orderID, string(job.Stage), job.WorkerID, string(job.InputFile), string(job.Status),
		string(job.AssignMode), formatTime(job.AcceptedTs), formatTimePtr(job.CompletedTs),
		formatTimePtr(job.CancelledTs), boolInt(job.ExtensionRequested), job.Earnings,
		boolInt(job.IsICQC), job.Comment,
	)
	if err != nil {
		if s.dialect.unique(err) {
			return orders.Wrap(orders.ErrAssignmentConflict, "assign",
				fmt.Sprintf("%s already has an accepted %s job", orderID, job.Stage))
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}
