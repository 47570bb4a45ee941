package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"orderflow/internal/orders"
)

// HealthSummary aggregates order counts for status output.
type HealthSummary struct {
	Total      int
	Ready      int
	Assigned   int
	Review     int
	Screening  int
	Delivering int
	Delivered  int
	Closed     int
}

// DatabaseHealth describes database diagnostics.
type DatabaseHealth struct {
	Driver         string
	DBPath         string
	DatabaseExists bool
	Reachable      bool
	SchemaVersion  int
	MissingTables  []string
	TotalOrders    int
	IntegrityCheck bool
	Error          string
}

var expectedTables = []string{"schema_version", "files", "orders", "jobs", "outbox"}

// Stats returns a count of orders grouped by status.
func (s *Store) Stats(ctx context.Context) (map[orders.Status]int, error) {
	raw, err := s.groupCounts(ctx, `SELECT status, COUNT(1) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	stats := make(map[orders.Status]int, len(raw))
	for status, count := range raw {
		stats[orders.Status(status)] = count
	}
	return stats, nil
}

// OutboxCounts returns a count of outbox rows grouped by status.
func (s *Store) OutboxCounts(ctx context.Context) (map[string]int, error) {
	counts, err := s.groupCounts(ctx, `SELECT status, COUNT(1) FROM outbox GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	return counts, nil
}

func (s *Store) groupCounts(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.queryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// Health aggregates order state for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for status, count := range stats {
		health.Total += count
		switch status {
		case orders.StatusTranscribed, orders.StatusQCCompleted, orders.StatusFormatted:
			health.Ready += count
		case orders.StatusQCAssigned, orders.StatusReviewerAssigned, orders.StatusFinalizerAssigned:
			health.Assigned += count
		case orders.StatusSubmittedForApproval:
			health.Review += count
		case orders.StatusSubmittedForScreening:
			health.Screening += count
		case orders.StatusFinalizingCompleted, orders.StatusPreDelivered:
			health.Delivering += count
		case orders.StatusDelivered:
			health.Delivered += count
		case orders.StatusCancelled, orders.StatusRefunded:
			health.Closed += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{Driver: s.dialect.name, DBPath: s.path}

	if s.dialect.name == "sqlite" {
		if s.path == "" {
			return health, errors.New("database path is unknown")
		}
		info, err := os.Stat(s.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return health, nil
			}
			return health, fmt.Errorf("stat database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("database path %q is a directory", s.path)
		}
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping database: %w", err)
	}
	health.Reachable = true

	for _, table := range expectedTables {
		var n int
		if err := s.db.QueryRowContext(connCtx, `SELECT COUNT(1) FROM `+table).Scan(&n); err != nil {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		if table == "orders" {
			health.TotalOrders = n
		}
	}
	if len(health.MissingTables) > 0 {
		health.Error = "missing tables: " + strings.Join(health.MissingTables, ", ")
		return health, nil
	}

	if err := s.db.QueryRowContext(connCtx, `SELECT version FROM schema_version`).Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	if s.dialect.name != "sqlite" {
		health.IntegrityCheck = true
		return health, nil
	}
	var result string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&result); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(result, "ok")
	return health, nil
}
