package api

import (
	"strconv"
	"time"

	"orderflow/internal/escalation"
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
	"orderflow/internal/reaper"
	"orderflow/internal/store"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// FromOrder converts an order to its API representation.
func FromOrder(o *orders.Order) Order {
	if o == nil {
		return Order{}
	}
	return Order{
		ID:               o.ID,
		FileID:           o.FileID,
		OwnerID:          o.OwnerID,
		OrgName:          o.OrgName,
		Status:           string(o.Status),
		Type:             string(o.Type),
		Progress:         o.Progress(),
		Priority:         o.Priority,
		HighDifficulty:   o.HighDifficulty,
		TAT:              o.TAT,
		DeliveryTs:       formatTimePtr(o.DeliveryTs),
		PWER:             o.PWER,
		RateBonus:        o.RateBonus,
		ScreenCount:      o.ScreenCount,
		ScreenedFrom:     string(o.ScreenedFrom),
		ReportMode:       string(o.ReportMode),
		ReportOption:     string(o.ReportOption),
		ReportComment:    o.ReportComment,
		FinalizerComment: o.FinalizerComment,
		OrderTs:          formatTime(o.OrderTs),
		UpdatedAt:        formatTime(o.UpdatedAt),
		DeliveredTs:      formatTimePtr(o.DeliveredTs),
		DeliveredBy:      o.DeliveredBy,
		ReleasedTs:       formatTimePtr(o.ReleasedTs),
	}
}

// FromOrders converts a slice of orders. An empty input yields an empty,
// non-nil slice so JSON consumers see [].
func FromOrders(list []orders.Order) []Order {
	out := make([]Order, 0, len(list))
	for i := range list {
		out = append(out, FromOrder(&list[i]))
	}
	return out
}

// FromJob converts a job to its API representation.
func FromJob(j *orders.Job) Job {
	if j == nil {
		return Job{}
	}
	return Job{
		ID:                 j.ID,
		OrderID:            j.OrderID,
		Stage:              string(j.Stage),
		WorkerID:           j.WorkerID,
		InputFile:          string(j.InputFile),
		Status:             string(j.Status),
		AssignMode:         string(j.AssignMode),
		AcceptedTs:         formatTime(j.AcceptedTs),
		CompletedTs:        formatTimePtr(j.CompletedTs),
		CancelledTs:        formatTimePtr(j.CancelledTs),
		ExtensionRequested: j.ExtensionRequested,
		Earnings:           j.Earnings,
		IsICQC:             j.IsICQC,
		Comment:            j.Comment,
	}
}

func jobPtr(j *orders.Job) *Job {
	if j == nil {
		return nil
	}
	dto := FromJob(j)
	return &dto
}

func orderPtr(o *orders.Order) *Order {
	if o == nil {
		return nil
	}
	dto := FromOrder(o)
	return &dto
}

// FromFile converts a file record.
func FromFile(f *orders.File) *File {
	if f == nil {
		return nil
	}
	return &File{ID: f.ID, Filename: f.Filename, DurationSeconds: f.DurationSeconds}
}

// FromTimeoutSummary converts a reaper summary.
func FromTimeoutSummary(s reaper.Summary) TimeoutSweepResponse {
	return TimeoutSweepResponse{
		TimedOut: nonNil(s.TimedOut),
		Warned:   nonNil(s.Warned),
		Skipped:  s.Skipped,
		Failed:   s.Failed,
	}
}

// FromEscalationSummary converts an escalation summary.
func FromEscalationSummary(s escalation.Summary) EscalationResponse {
	resp := EscalationResponse{Escalated: nonNil(s.Escalated), Failed: s.Failed}
	if len(s.Buckets) > 0 {
		resp.Buckets = make(map[string][]string, len(s.Buckets))
		for hours, ids := range s.Buckets {
			resp.Buckets[strconv.Itoa(hours)] = ids
		}
	}
	return resp
}

// FromHealth converts store health counters.
func FromHealth(h store.HealthSummary) HealthSummary {
	return HealthSummary{
		Total:      h.Total,
		Ready:      h.Ready,
		Assigned:   h.Assigned,
		Review:     h.Review,
		Screening:  h.Screening,
		Delivering: h.Delivering,
		Delivered:  h.Delivered,
		Closed:     h.Closed,
	}
}

// FromDatabaseHealth converts store diagnostics.
func FromDatabaseHealth(h store.DatabaseHealth) DatabaseStatus {
	return DatabaseStatus{
		Driver:         h.Driver,
		Path:           h.DBPath,
		Exists:         h.DatabaseExists,
		Reachable:      h.Reachable,
		SchemaVersion:  h.SchemaVersion,
		MissingTables:  h.MissingTables,
		IntegrityCheck: h.IntegrityCheck,
		Error:          h.Error,
	}
}

// FromOutboxEntry converts an outbox row.
func FromOutboxEntry(e store.OutboxEntry) OutboxEntry {
	return OutboxEntry{
		ID:        e.ID,
		Template:  string(e.Template),
		Recipient: e.Recipient,
		Status:    e.Status,
		Attempts:  e.Attempts,
		LastError: e.LastError,
		CreatedAt: formatTime(e.CreatedAt),
		SentAt:    formatTimePtr(e.SentAt),
		Data:      map[string]any(e.Data),
	}
}

// FromDispatchResult converts a dispatcher pass.
func FromDispatchResult(r notifications.DispatchResult) DispatchResponse {
	return DispatchResponse{Sent: r.Sent, Failed: r.Failed, Dead: r.Dead}
}

// StatusCounts keys order counts by status string, listing every status.
func StatusCounts(stats map[orders.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range orders.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
