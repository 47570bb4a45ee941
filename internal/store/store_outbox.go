package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/notifications"
	"orderflow/internal/orders"
)

// Outbox statuses.
const (
	OutboxPending = "pending"
	OutboxSent    = "sent"
	OutboxFailed  = "failed"
)

// OutboxEntry is an outbox row as shown to operators.
type OutboxEntry struct {
	notifications.Message
	Status        string
	LastError     string
	NextAttemptAt time.Time
	SentAt        *time.Time
}

const outboxColumns = "id, template, recipient, payload, dedup_key, status, attempts, last_error, created_at, next_attempt_at, sent_at"

// insertMessages writes msgs inside tx. Messages whose dedup key already
// exists are skipped.
func insertMessages(ctx context.Context, tx *txn, msgs []notifications.Message, at time.Time) (int, error) {
	written := 0
	for _, msg := range msgs {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		var dedup any
		if msg.DedupKey != "" {
			n, err := tx.count(ctx, `SELECT COUNT(1) FROM outbox WHERE dedup_key = ?`, msg.DedupKey)
			if err != nil {
				return written, fmt.Errorf("check outbox dedup: %w", err)
			}
			if n > 0 {
				continue
			}
			dedup = msg.DedupKey
		}
		payload, err := json.Marshal(msg.Data)
		if err != nil {
			return written, fmt.Errorf("encode %s payload: %w", msg.Template, err)
		}
		created := msg.CreatedAt
		if created.IsZero() {
			created = at
		}
		if _, err := tx.exec(ctx,
			`INSERT INTO outbox (`+outboxColumns+`) VALUES (`+placeholders(11)+`)`,
			msg.ID, string(msg.Template), msg.Recipient, string(payload), dedup, OutboxPending,
			0, "", formatTime(created), formatTime(at), nil,
		); err != nil {
			return written, fmt.Errorf("insert outbox message: %w", err)
		}
		written++
	}
	return written, nil
}

// PendingMessages returns up to limit pending messages due at or before now,
// oldest first.
func (s *Store) PendingMessages(ctx context.Context, now time.Time, limit int) ([]notifications.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.listOutbox(ctx,
		`WHERE status = ? AND next_attempt_at <= ? ORDER BY next_attempt_at, created_at, id LIMIT `+fmt.Sprint(limit),
		OutboxPending, formatTime(now))
	if err != nil {
		return nil, err
	}
	msgs := make([]notifications.Message, len(entries))
	for i, entry := range entries {
		msgs[i] = entry.Message
	}
	return msgs, nil
}

// MarkMessageSent records a successful delivery.
func (s *Store) MarkMessageSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox SET status = ?, attempts = attempts + 1, sent_at = ?, last_error = '' WHERE id = ?`,
		OutboxSent, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	return requireRow(res, id)
}

// MarkMessageFailed records a failed attempt and schedules the next one, or
// parks the message when dead.
func (s *Store) MarkMessageFailed(ctx context.Context, id string, attempts int, lastErr string, next time.Time, dead bool) error {
	status := OutboxPending
	if dead {
		status = OutboxFailed
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		status, attempts, lastErr, formatTime(next), id)
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	return requireRow(res, id)
}

// ListOutbox returns outbox rows, newest first. An empty status lists all.
func (s *Store) ListOutbox(ctx context.Context, status string, limit int) ([]OutboxEntry, error) {
	clause := ``
	var args []any
	if status != "" {
		clause = `WHERE status = ? `
		args = append(args, status)
	}
	clause += `ORDER BY created_at DESC, id`
	if limit > 0 {
		clause += fmt.Sprintf(` LIMIT %d`, limit)
	}
	return s.listOutbox(ctx, clause, args...)
}

// RetryDeadMessages returns every failed message to the pending queue with a
// fresh attempt budget.
func (s *Store) RetryDeadMessages(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE outbox SET status = ?, attempts = 0, next_attempt_at = ? WHERE status = ?`,
		OutboxPending, formatTime(s.now()), OutboxFailed)
	if err != nil {
		return 0, fmt.Errorf("retry dead messages: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) listOutbox(ctx context.Context, clause string, args ...any) ([]OutboxEntry, error) {
	rows, err := s.queryContext(ctx, `SELECT `+outboxColumns+` FROM outbox `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var (
			entry      OutboxEntry
			template   string
			payload    string
			dedup      sql.NullString
			createdRaw string
			nextRaw    string
			sentRaw    sql.NullString
		)
		if err := rows.Scan(&entry.ID, &template, &entry.Recipient, &payload, &dedup, &entry.Status,
			&entry.Attempts, &entry.LastError, &createdRaw, &nextRaw, &sentRaw); err != nil {
			return nil, err
		}
		entry.Template = notifications.Template(template)
		entry.DedupKey = dedup.String
		entry.CreatedAt = parseTime(createdRaw)
		entry.NextAttemptAt = parseTime(nextRaw)
		entry.SentAt = parseTimePtr(sentRaw)
		entry.Data = notifications.Payload{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &entry.Data); err != nil {
				return nil, fmt.Errorf("decode outbox payload %s: %w", entry.ID, err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return orders.Wrap(orders.ErrInvalidRequest, "outbox", "unknown message "+id)
	}
	return nil
}
