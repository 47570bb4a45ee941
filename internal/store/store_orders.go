package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/orders"
)

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Statuses []orders.Status
	OwnerID  string
	Limit    int
}

// ReadyOrder is an order in a ready status together with the review history
// needed to resolve FORMATTED readiness.
type ReadyOrder struct {
	Order           orders.Order
	ReviewCompleted bool
}

// CreateFile inserts a media file record. An ID is generated when empty.
func (s *Store) CreateFile(ctx context.Context, file orders.File) (*orders.File, error) {
	file, err := s.prepareFile(file)
	if err != nil {
		return nil, err
	}
	if err := s.withTx(ctx, func(tx *txn) error {
		return insertFile(ctx, tx, file)
	}); err != nil {
		return nil, err
	}
	return &file, nil
}

func (s *Store) prepareFile(file orders.File) (orders.File, error) {
	file.Filename = strings.TrimSpace(file.Filename)
	if file.Filename == "" {
		return file, orders.Wrap(orders.ErrInvalidRequest, "create file", "filename is required")
	}
	if file.DurationSeconds < 0 {
		return file, orders.Wrap(orders.ErrInvalidRequest, "create file", "duration must be >= 0")
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = s.now()
	}
	file.CreatedAt = file.CreatedAt.UTC()
	return file, nil
}

func insertFile(ctx context.Context, tx *txn, file orders.File) error {
	if _, err := tx.exec(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?)`,
		file.ID, file.Filename, file.DurationSeconds, formatTime(file.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFile fetches a file by id.
func (s *Store) GetFile(ctx context.Context, id string) (*orders.File, error) {
	row := s.queryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.Wrap(orders.ErrFileNotFound, "get file", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// CreateOrder inserts a new order for an existing file. The status defaults
// to the order type's entry status and timestamps default to now.
func (s *Store) CreateOrder(ctx context.Context, order orders.Order) (*orders.Order, error) {
	order, err := s.prepareOrder(order)
	if err != nil {
		return nil, err
	}
	if err := s.withTx(ctx, func(tx *txn) error {
		return insertOrder(ctx, tx, order)
	}); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

// CreateOrderWithFile inserts a file and an order on it in one transaction;
// neither row exists unless both inserts succeed.
func (s *Store) CreateOrderWithFile(ctx context.Context, file orders.File, order orders.Order) (*orders.Order, error) {
	file, err := s.prepareFile(file)
	if err != nil {
		return nil, err
	}
	order.FileID = file.ID
	if order, err = s.prepareOrder(order); err != nil {
		return nil, err
	}
	if err := s.withTx(ctx, func(tx *txn) error {
		if err := insertFile(ctx, tx, file); err != nil {
			return err
		}
		return insertOrder(ctx, tx, order)
	}); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Store) prepareOrder(order orders.Order) (orders.Order, error) {
	if _, ok := orders.ParseOrderType(string(order.Type)); !ok {
		return order, orders.Wrap(orders.ErrUnsupportedOrderType, "create order", string(order.Type))
	}
	if strings.TrimSpace(order.OwnerID) == "" {
		return order, orders.Wrap(orders.ErrInvalidRequest, "create order", "owner is required")
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = orders.InitialStatus(order.Type)
	}
	if order.OrderTs.IsZero() {
		order.OrderTs = s.now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.OrderTs
	}
	return order, nil
}

func insertOrder(ctx context.Context, tx *txn, order orders.Order) error {
	n, err := tx.count(ctx, `SELECT COUNT(1) FROM files WHERE id = ?`, order.FileID)
	if err != nil {
		return fmt.Errorf("check file: %w", err)
	}
	if n == 0 {
		return orders.Wrap(orders.ErrFileNotFound, "create order", order.FileID)
	}
	if _, err := tx.exec(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES (`+placeholders(23)+`)`,
		order.ID, order.FileID, order.OwnerID, order.OrgName, string(order.Status), string(order.Type),
		order.Priority, boolInt(order.HighDifficulty), order.TAT, formatTimePtr(order.DeliveryTs),
		order.PWER, order.RateBonus, order.ScreenCount, string(order.ScreenedFrom),
		string(order.ReportMode), string(order.ReportOption), order.ReportComment, order.FinalizerComment,
		formatTime(order.OrderTs), formatTime(order.UpdatedAt), formatTimePtr(order.DeliveredTs), order.DeliveredBy,
		formatTimePtr(order.ReleasedTs),
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder fetches an order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	row := s.queryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orders.Wrap(orders.ErrOrderNotFound, "get order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrders returns orders matching filter ordered by order time.
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]orders.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, `status IN (`+placeholders(len(filter.Statuses))+`)`)
		args = append(args, statusArgs(filter.Statuses)...)
	}
	if owner := strings.TrimSpace(filter.OwnerID); owner != "" {
		where = append(where, `owner_id = ?`)
		args = append(args, owner)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY order_ts, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	return s.collectOrders(ctx, query, args...)
}

// ReadyOrders returns orders in a status from which stage can be picked up,
// last written at or before settledBefore, ordered by order time then id.
func (s *Store) ReadyOrders(ctx context.Context, stage orders.Stage, settledBefore time.Time) ([]ReadyOrder, error) {
	statuses := orders.ReadyStatuses(stage)
	if len(statuses) == 0 {
		return nil, nil
	}
	args := append(statusArgs(statuses), formatTime(settledBefore))
	rows, err := s.queryContext(ctx,
		`SELECT `+prefixed("o", orderColumns)+`,
			CASE WHEN EXISTS (
				SELECT 1 FROM jobs j WHERE j.order_id = o.id AND j.type = 'REVIEW' AND j.status = 'COMPLETED'
			) THEN 1 ELSE 0 END
		FROM orders o
		WHERE o.status IN (`+placeholders(len(statuses))+`) AND o.updated_at <= ?
		ORDER BY o.order_ts, o.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("ready orders: %w", err)
	}
	defer rows.Close()

	var ready []ReadyOrder
	for rows.Next() {
		var reviewed int
		order, err := scanOrder(rows, &reviewed)
		if err != nil {
			return nil, err
		}
		ready = append(ready, ReadyOrder{Order: *order, ReviewCompleted: reviewed != 0})
	}
	return ready, rows.Err()
}

// UnassignedOrders returns orders in statuses that have never had an
// ACCEPTED or COMPLETED job of any stage.
func (s *Store) UnassignedOrders(ctx context.Context, statuses []orders.Status) ([]orders.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	return s.collectOrders(ctx,
		`SELECT `+prefixed("o", orderColumns)+`
		FROM orders o
		WHERE o.status IN (`+placeholders(len(statuses))+`)
		AND NOT EXISTS (
			SELECT 1 FROM jobs j WHERE j.order_id = o.id AND j.status IN ('ACCEPTED', 'COMPLETED')
		)
		ORDER BY o.order_ts, o.id`,
		statusArgs(statuses)...,
	)
}

// HasCompletedStage reports whether the order has a COMPLETED job for stage.
func (s *Store) HasCompletedStage(ctx context.Context, orderID string, stage orders.Stage) (bool, error) {
	var n int
	if err := s.queryRowContext(ctx,
		`SELECT COUNT(1) FROM jobs WHERE order_id = ? AND type = ? AND status = 'COMPLETED'`,
		orderID, string(stage),
	).Scan(&n); err != nil {
		return false, fmt.Errorf("count completed jobs: %w", err)
	}
	return n > 0, nil
}

func (s *Store) collectOrders(ctx context.Context, query string, args ...any) ([]orders.Order, error) {
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *order)
	}
	return out, rows.Err()
}
