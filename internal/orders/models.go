package orders

import (
	"strings"
	"time"
)

// Status represents the pipeline stage of an order.
type Status string

const (
	StatusTranscribed           Status = "TRANSCRIBED"
	StatusQCAssigned            Status = "QC_ASSIGNED"
	StatusQCCompleted           Status = "QC_COMPLETED"
	StatusReviewerAssigned      Status = "REVIEWER_ASSIGNED"
	StatusFormatted             Status = "FORMATTED"
	StatusFinalizerAssigned     Status = "FINALIZER_ASSIGNED"
	StatusFinalizingCompleted   Status = "FINALIZING_COMPLETED"
	StatusPreDelivered          Status = "PRE_DELIVERED"
	StatusDelivered             Status = "DELIVERED"
	StatusSubmittedForApproval  Status = "SUBMITTED_FOR_APPROVAL"
	StatusSubmittedForScreening Status = "SUBMITTED_FOR_SCREENING"
	StatusCancelled             Status = "CANCELLED"
	StatusRefunded              Status = "REFUNDED"
)

var allStatuses = []Status{
	StatusTranscribed,
	StatusQCAssigned,
	StatusQCCompleted,
	StatusReviewerAssigned,
	StatusFormatted,
	StatusFinalizerAssigned,
	StatusFinalizingCompleted,
	StatusPreDelivered,
	StatusDelivered,
	StatusSubmittedForApproval,
	StatusSubmittedForScreening,
	StatusCancelled,
	StatusRefunded,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transitions leave the status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// OrderType determines which stages an order passes through.
type OrderType string

const (
	TypeTranscription           OrderType = "TRANSCRIPTION"
	TypeTranscriptionFormatting OrderType = "TRANSCRIPTION_FORMATTING"
	TypeFormatting              OrderType = "FORMATTING"
)

// ParseOrderType converts a string into a known OrderType.
func ParseOrderType(value string) (OrderType, bool) {
	switch t := OrderType(strings.ToUpper(strings.TrimSpace(value))); t {
	case TypeTranscription, TypeTranscriptionFormatting, TypeFormatting:
		return t, true
	default:
		return "", false
	}
}

// Stage identifies the kind of work a job assignment covers.
type Stage string

const (
	StageQC       Stage = "QC"
	StageReview   Stage = "REVIEW"
	StageFinalize Stage = "FINALIZE"
)

var allStages = []Stage{StageQC, StageReview, StageFinalize}

// AllStages returns every stage in pipeline order.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	switch s := Stage(strings.ToUpper(strings.TrimSpace(value))); s {
	case StageQC, StageReview, StageFinalize:
		return s, true
	default:
		return "", false
	}
}

// JobStatus represents the lifecycle of a job assignment.
type JobStatus string

const (
	JobAccepted             JobStatus = "ACCEPTED"
	JobCompleted            JobStatus = "COMPLETED"
	JobCancelled            JobStatus = "CANCELLED"
	JobRejected             JobStatus = "REJECTED"
	JobTimedOut             JobStatus = "TIMEDOUT"
	JobSubmittedForApproval JobStatus = "SUBMITTED_FOR_APPROVAL"
)

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	switch s := JobStatus(strings.ToUpper(strings.TrimSpace(value))); s {
	case JobAccepted, JobCompleted, JobCancelled, JobRejected, JobTimedOut, JobSubmittedForApproval:
		return s, true
	default:
		return "", false
	}
}

// AssignMode records how a job was handed to a worker.
type AssignMode string

const (
	AssignAuto   AssignMode = "AUTO"
	AssignManual AssignMode = "MANUAL"
)

// InputKind names the artifact a stage starts from.
type InputKind string

const (
	InputASROutput    InputKind = "ASR_OUTPUT"
	InputQCOutput     InputKind = "QC_OUTPUT"
	InputLLMOutput    InputKind = "LLM_OUTPUT"
	InputReviewOutput InputKind = "REVIEW_OUTPUT"
)

// ReportMode records who produced a quality report.
type ReportMode string

const (
	ReportAuto   ReportMode = "AUTO"
	ReportManual ReportMode = "MANUAL"
)

// ReportOption categorizes why an order left the automatic path.
type ReportOption string

const (
	ReportDiffBelowThreshold ReportOption = "AUTO_DIFF_BELOW_THRESHOLD"
	ReportNotPickedUp        ReportOption = "NOT_PICKED_UP"
)

// File is the read-only media record an order refers to.
type File struct {
	ID              string
	Filename        string
	DurationSeconds float64
	CreatedAt       time.Time
}

// Duration returns the media duration as a time.Duration.
func (f File) Duration() time.Duration {
	return time.Duration(f.DurationSeconds * float64(time.Second))
}

// Order is one file under production.
type Order struct {
	ID               string
	FileID           string
	OwnerID          string
	OrgName          string
	Status           Status
	Type             OrderType
	Priority         int
	HighDifficulty   bool
	TAT              int
	DeliveryTs       *time.Time
	PWER             float64
	RateBonus        float64
	ScreenCount      int
	ScreenedFrom     Status
	ReportMode       ReportMode
	ReportOption     ReportOption
	ReportComment    string
	FinalizerComment string
	OrderTs          time.Time
	UpdatedAt        time.Time
	DeliveredTs      *time.Time
	DeliveredBy      string
	// ReleasedTs is set when an operator last released the order from
	// screening.
	ReleasedTs *time.Time
}

// Progress returns the completion percentage of the order.
func (o Order) Progress() int {
	return Progress(o.Type, o.Status)
}

// IsOverdue reports whether the promised delivery time has passed.
func (o Order) IsOverdue(now time.Time) bool {
	return o.DeliveryTs != nil && o.DeliveryTs.Before(now)
}

// Job is one assignment of an order stage to a worker.
type Job struct {
	ID                 string
	OrderID            string
	Stage              Stage
	WorkerID           string
	InputFile          InputKind
	Status             JobStatus
	AssignMode         AssignMode
	AcceptedTs         time.Time
	CompletedTs        *time.Time
	CancelledTs        *time.Time
	ExtensionRequested bool
	Earnings           float64
	IsICQC             bool
	Comment            string
}

// IsActive reports whether the job is still held by its worker.
func (j Job) IsActive() bool {
	return j.Status == JobAccepted
}
