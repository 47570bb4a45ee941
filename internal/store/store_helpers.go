package store

import (
	"database/sql"
	"strings"
	"time"

	"orderflow/internal/orders"
)

// timestampLayout is fixed-width so lexical order matches chronological
// order on every dialect.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const orderColumns = "id, file_id, owner_id, org_name, status, order_type, priority, high_difficulty, tat, delivery_ts, pwer, rate_bonus, screen_count, screened_from, report_mode, report_option, report_comment, finalizer_comment, order_ts, updated_at, delivered_ts, delivered_by, released_ts"

const jobColumns = "id, order_id, type, transcriber_id, input_file, status, assign_mode, accepted_ts, completed_ts, cancelled_ts, extension_requested, earnings, is_ic_qc, comment"

const fileColumns = "id, filename, duration_seconds, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timestampLayout, raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseTimePtr(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t := parseTime(raw.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

type orderRow struct {
	o              orders.Order
	status         string
	orderType      string
	highDifficulty int
	deliveryRaw    sql.NullString
	screenedFrom   string
	reportMode     string
	reportOption   string
	orderTsRaw     string
	updatedRaw     string
	deliveredRaw   sql.NullString
	releasedRaw    sql.NullString
}

func (r *orderRow) dest() []any {
	o := &r.o
	return []any{
		&o.ID, &o.FileID, &o.OwnerID, &o.OrgName, &r.status, &r.orderType,
		&o.Priority, &r.highDifficulty, &o.TAT, &r.deliveryRaw, &o.PWER, &o.RateBonus,
		&o.ScreenCount, &r.screenedFrom, &r.reportMode, &r.reportOption, &o.ReportComment,
		&o.FinalizerComment, &r.orderTsRaw, &r.updatedRaw, &r.deliveredRaw, &o.DeliveredBy,
		&r.releasedRaw,
	}
}

func (r *orderRow) build() *orders.Order {
	o := r.o
	o.Status = orders.Status(r.status)
	o.Type = orders.OrderType(r.orderType)
	o.HighDifficulty = r.highDifficulty != 0
	o.DeliveryTs = parseTimePtr(r.deliveryRaw)
	o.ScreenedFrom = orders.Status(r.screenedFrom)
	o.ReportMode = orders.ReportMode(r.reportMode)
	o.ReportOption = orders.ReportOption(r.reportOption)
	o.OrderTs = parseTime(r.orderTsRaw)
	o.UpdatedAt = parseTime(r.updatedRaw)
	o.DeliveredTs = parseTimePtr(r.deliveredRaw)
	o.ReleasedTs = parseTimePtr(r.releasedRaw)
	return &o
}

// scanOrder decodes orderColumns followed by any extra destinations.
func scanOrder(scanner rowScanner, extra ...any) (*orders.Order, error) {
	var r orderRow
	if err := scanner.Scan(append(r.dest(), extra...)...); err != nil {
		return nil, err
	}
	return r.build(), nil
}

type jobRow struct {
	j            orders.Job
	stage        string
	input        string
	status       string
	mode         string
	acceptedRaw  string
	completedRaw sql.NullString
	cancelledRaw sql.NullString
	extension    int
	icqc         int
}

func (r *jobRow) dest() []any {
	j := &r.j
	return []any{
		&j.ID, &j.OrderID, &r.stage, &j.WorkerID, &r.input, &r.status, &r.mode,
		&r.acceptedRaw, &r.completedRaw, &r.cancelledRaw, &r.extension, &j.Earnings, &r.icqc, &j.Comment,
	}
}

func (r *jobRow) build() *orders.Job {
	j := r.j
	j.Stage = orders.Stage(r.stage)
	j.InputFile = orders.InputKind(r.input)
	j.Status = orders.JobStatus(r.status)
	j.AssignMode = orders.AssignMode(r.mode)
	j.AcceptedTs = parseTime(r.acceptedRaw)
	j.CompletedTs = parseTimePtr(r.completedRaw)
	j.CancelledTs = parseTimePtr(r.cancelledRaw)
	j.ExtensionRequested = r.extension != 0
	j.IsICQC = r.icqc != 0
	return &j
}

func scanJob(scanner rowScanner) (*orders.Job, error) {
	var r jobRow
	if err := scanner.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.build(), nil
}

type fileRow struct {
	f          orders.File
	createdRaw string
}

func (r *fileRow) dest() []any {
	return []any{&r.f.ID, &r.f.Filename, &r.f.DurationSeconds, &r.createdRaw}
}

func (r *fileRow) build() *orders.File {
	f := r.f
	f.CreatedAt = parseTime(r.createdRaw)
	return &f
}

func scanFile(scanner rowScanner) (*orders.File, error) {
	var r fileRow
	if err := scanner.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.build(), nil
}

// prefixed qualifies a column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func statusArgs(statuses []orders.Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
