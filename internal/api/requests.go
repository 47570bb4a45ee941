package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"orderflow/internal/orders"
)

// CreateOrderRequest registers a transcribed file and its order.
type CreateOrderRequest struct {
	Filename        string     `json:"filename" validate:"required"`
	DurationSeconds float64    `json:"durationSeconds" validate:"gt=0"`
	OwnerID         string     `json:"ownerId" validate:"required"`
	OrgName         string     `json:"orgName,omitempty"`
	Type            string     `json:"type" validate:"omitempty,oneof=TRANSCRIPTION TRANSCRIPTION_FORMATTING FORMATTING"`
	Priority        int        `json:"priority" validate:"gte=0"`
	HighDifficulty  bool       `json:"highDifficulty"`
	TAT             int        `json:"tat" validate:"gte=0"`
	DeliveryTs      *time.Time `json:"deliveryTs,omitempty"`
	PWER            float64    `json:"pwer" validate:"gte=0,lte=1"`
	RateBonus       float64    `json:"rateBonus" validate:"gte=0"`
}

// AcceptRequest claims an order stage for a worker.
type AcceptRequest struct {
	WorkerID string `json:"workerId" validate:"required"`
	Stage    string `json:"stage" validate:"required,oneof=QC REVIEW FINALIZE"`
}

// SubmitRequest hands in work for a stage.
type SubmitRequest struct {
	WorkerID     string   `json:"workerId" validate:"required"`
	Stage        string   `json:"stage" validate:"required,oneof=QC REVIEW FINALIZE"`
	Score        *float64 `json:"score,omitempty" validate:"omitempty,gte=0"`
	Earnings     float64  `json:"earnings" validate:"gte=0"`
	Comment      string   `json:"comment,omitempty" validate:"max=4000"`
	Deliverables []string `json:"deliverables,omitempty" validate:"omitempty,dive,required"`
}

// RejectRequest returns a diverted submission to the queue.
type RejectRequest struct {
	Comment string `json:"comment" validate:"required"`
}

// DeliverRequest releases a finished order to its owner.
type DeliverRequest struct {
	DeliveredBy string `json:"deliveredBy" validate:"required"`
}

// CancelRequest cancels or refunds an order.
type CancelRequest struct {
	Refund bool   `json:"refund"`
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// ReassignRequest moves an active job to another worker.
type ReassignRequest struct {
	AssignmentID     string `json:"assignmentId" validate:"required"`
	NewWorkerID      string `json:"newWorkerId" validate:"required"`
	Reason           string `json:"reason,omitempty" validate:"max=1000"`
	PreserveEarnings bool   `json:"preserveEarnings"`
}

// UnassignRequest removes a worker from an active job.
type UnassignRequest struct {
	AssignmentID string `json:"assignmentId" validate:"required"`
	Reject       bool   `json:"reject"`
	Reason       string `json:"reason,omitempty" validate:"max=1000"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v against its struct tags. Failures are classified as
// invalid requests and name the first offending field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return orders.Wrap(orders.ErrInvalidRequest, "validate", fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return orders.Wrap(orders.ErrInvalidRequest, "validate", err.Error())
}
