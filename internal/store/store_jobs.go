package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderflow/internal/orders"
)

// ActiveAssignment is an ACCEPTED job joined with its order and file, as
// consumed by the timeout sweep.
type ActiveAssignment struct {
	Job   orders.Job
	Order orders.Order
	File  orders.File
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*orders.Job, error) {
	row := s.queryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.Wrap(orders.ErrAssignmentNotFound, "get job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ActiveJob returns the ACCEPTED job for an order stage.
func (s *Store) ActiveJob(ctx context.Context, orderID string, stage orders.Stage) (*orders.Job, error) {
	return s.singleJob(ctx, "active job",
		`SELECT `+jobColumns+` FROM jobs WHERE order_id = ? AND type = ? AND status = 'ACCEPTED'`,
		orderID, string(stage))
}

// AnyActiveJob returns the ACCEPTED job of any stage on an order.
func (s *Store) AnyActiveJob(ctx context.Context, orderID string) (*orders.Job, error) {
	return s.singleJob(ctx, "active job",
		`SELECT `+jobColumns+` FROM jobs WHERE order_id = ? AND status = 'ACCEPTED' ORDER BY accepted_ts DESC`,
		orderID)
}

// PendingApprovalJob returns the job awaiting manual approval on an order.
func (s *Store) PendingApprovalJob(ctx context.Context, orderID string) (*orders.Job, error) {
	return s.singleJob(ctx, "approval job",
		`SELECT `+jobColumns+` FROM jobs WHERE order_id = ? AND status = 'SUBMITTED_FOR_APPROVAL' ORDER BY accepted_ts DESC`,
		orderID)
}

func (s *Store) singleJob(ctx context.Context, label, query string, args ...any) (*orders.Job, error) {
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		return nil, orders.Wrap(orders.ErrAssignmentNotFound, label, fmt.Sprintf("%v", args))
	}
	return scanJob(rows)
}

// ListJobs returns every job recorded for an order, oldest first.
func (s *Store) ListJobs(ctx context.Context, orderID string) ([]orders.Job, error) {
	rows, err := s.queryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE order_id = ? ORDER BY accepted_ts, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []orders.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// WorkerActiveJob returns the ACCEPTED job a worker holds, if any.
func (s *Store) WorkerActiveJob(ctx context.Context, workerID string) (*orders.Job, error) {
	return s.singleJob(ctx, "worker active job",
		`SELECT `+jobColumns+` FROM jobs WHERE transcriber_id = ? AND status = 'ACCEPTED'`, workerID)
}

// ExcludedOrderIDs returns the orders whose stage the worker previously
// cancelled or was rejected from.
func (s *Store) ExcludedOrderIDs(ctx context.Context, workerID string, stage orders.Stage) (map[string]struct{}, error) {
	rows, err := s.queryContext(ctx,
		`SELECT DISTINCT order_id FROM jobs
		WHERE transcriber_id = ? AND type = ? AND status IN ('CANCELLED', 'REJECTED')`,
		workerID, string(stage))
	if err != nil {
		return nil, fmt.Errorf("worker history: %w", err)
	}
	defer rows.Close()

	excluded := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		excluded[id] = struct{}{}
	}
	return excluded, rows.Err()
}

// ActiveAssignments returns ACCEPTED jobs of the given stages with their
// order and file, oldest acceptance first.
func (s *Store) ActiveAssignments(ctx context.Context, stages []orders.Stage) ([]ActiveAssignment, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	args := make([]any, len(stages))
	for i, stage := range stages {
		args[i] = string(stage)
	}
	rows, err := s.queryContext(ctx,
		`SELECT `+prefixed("j", jobColumns)+`, `+prefixed("o", orderColumns)+`, `+prefixed("f", fileColumns)+`
		FROM jobs j
		JOIN orders o ON o.id = j.order_id
		JOIN files f ON f.id = o.file_id
		WHERE j.status = 'ACCEPTED' AND j.type IN (`+placeholders(len(stages))+`)
		ORDER BY j.accepted_ts, j.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("active assignments: %w", err)
	}
	defer rows.Close()

	var out []ActiveAssignment
	for rows.Next() {
		var (
			jr jobRow
			or orderRow
			fr fileRow
		)
		dest := append(append(jr.dest(), or.dest()...), fr.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, ActiveAssignment{Job: *jr.build(), Order: *or.build(), File: *fr.build()})
	}
	return out, rows.Err()
}
