package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// File describes the media an order refers to.
type File struct {
	ID              string  `json:"id"`
	Filename        string  `json:"filename"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Order describes an order in a transport-friendly format.
type Order struct {
	ID               string  `json:"id"`
	FileID           string  `json:"fileId"`
	OwnerID          string  `json:"ownerId"`
	OrgName          string  `json:"orgName,omitempty"`
	Status           string  `json:"status"`
	Type             string  `json:"type"`
	Progress         int     `json:"progress"`
	Priority         int     `json:"priority"`
	HighDifficulty   bool    `json:"highDifficulty"`
	TAT              int     `json:"tat"`
	DeliveryTs       string  `json:"deliveryTs,omitempty"`
	PWER             float64 `json:"pwer"`
	RateBonus        float64 `json:"rateBonus"`
	ScreenCount      int     `json:"screenCount"`
	ScreenedFrom     string  `json:"screenedFrom,omitempty"`
	ReportMode       string  `json:"reportMode,omitempty"`
	ReportOption     string  `json:"reportOption,omitempty"`
	ReportComment    string  `json:"reportComment,omitempty"`
	FinalizerComment string  `json:"finalizerComment,omitempty"`
	OrderTs          string  `json:"orderTs"`
	UpdatedAt        string  `json:"updatedAt,omitempty"`
	DeliveredTs      string  `json:"deliveredTs,omitempty"`
	DeliveredBy      string  `json:"deliveredBy,omitempty"`
	ReleasedTs       string  `json:"releasedTs,omitempty"`
}

// Job describes one assignment.
type Job struct {
	ID                 string  `json:"id"`
	OrderID            string  `json:"orderId"`
	Stage              string  `json:"stage"`
	WorkerID           string  `json:"workerId"`
	InputFile          string  `json:"inputFile"`
	Status             string  `json:"status"`
	AssignMode         string  `json:"assignMode"`
	AcceptedTs         string  `json:"acceptedTs"`
	CompletedTs        string  `json:"completedTs,omitempty"`
	CancelledTs        string  `json:"cancelledTs,omitempty"`
	ExtensionRequested bool    `json:"extensionRequested"`
	Earnings           float64 `json:"earnings"`
	IsICQC             bool    `json:"isIcqc"`
	Comment            string  `json:"comment,omitempty"`
}

// OrderDetail is an order with its file and job history.
type OrderDetail struct {
	Order Order `json:"order"`
	File  *File `json:"file,omitempty"`
	Jobs  []Job `json:"jobs"`
}

// OrderListResponse wraps a collection of orders.
type OrderListResponse struct {
	Items []Order `json:"items"`
}

// ActionResponse is returned by worker and operator operations.
type ActionResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Order    *Order   `json:"order,omitempty"`
	Job      *Job     `json:"job,omitempty"`
	Handoff  *Job     `json:"handoff,omitempty"`
	Diverted bool     `json:"diverted,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// TimeoutSweepResponse summarizes a timeout sweep.
type TimeoutSweepResponse struct {
	TimedOut []string `json:"timedOut"`
	Warned   []string `json:"warned"`
	Skipped  []string `json:"skipped,omitempty"`
	Failed   []string `json:"failed,omitempty"`
}

// EscalationResponse summarizes an escalation run. Buckets are keyed by
// threshold hours.
type EscalationResponse struct {
	Escalated []string            `json:"escalated"`
	Buckets   map[string][]string `json:"buckets,omitempty"`
	Failed    []string            `json:"failed,omitempty"`
}

// DispatchResponse summarizes one outbox drain.
type DispatchResponse struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Dead   int `json:"dead"`
}

// HealthSummary groups order counts for dashboards.
type HealthSummary struct {
	Total      int `json:"total"`
	Ready      int `json:"ready"`
	Assigned   int `json:"assigned"`
	Review     int `json:"review"`
	Screening  int `json:"screening"`
	Delivering int `json:"delivering"`
	Delivered  int `json:"delivered"`
	Closed     int `json:"closed"`
}

// DatabaseStatus reports store diagnostics.
type DatabaseStatus struct {
	Driver         string   `json:"driver"`
	Path           string   `json:"path,omitempty"`
	Exists         bool     `json:"exists"`
	Reachable      bool     `json:"reachable"`
	SchemaVersion  int      `json:"schemaVersion"`
	MissingTables  []string `json:"missingTables,omitempty"`
	IntegrityCheck bool     `json:"integrityCheck"`
	Error          string   `json:"error,omitempty"`
}

// StatusResponse aggregates engine state for API consumers.
type StatusResponse struct {
	Running  bool           `json:"running"`
	PID      int            `json:"pid,omitempty"`
	Orders   map[string]int `json:"orders"`
	Health   HealthSummary  `json:"health"`
	Outbox   map[string]int `json:"outbox"`
	Database DatabaseStatus `json:"database"`
}

// OutboxEntry describes one queued notification.
type OutboxEntry struct {
	ID        string         `json:"id"`
	Template  string         `json:"template"`
	Recipient string         `json:"recipient"`
	Status    string         `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"lastError,omitempty"`
	CreatedAt string         `json:"createdAt"`
	SentAt    string         `json:"sentAt,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
