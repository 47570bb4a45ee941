package orders

// transitions lists the legal forward, branch, and revert edges per status.
// Cancellation edges are added separately and gated by progress.
var transitions = map[Status][]Status{
	StatusTranscribed: {
		StatusQCAssigned,
		StatusSubmittedForScreening,
	},
	StatusQCAssigned: {
		StatusQCCompleted,
		StatusSubmittedForApproval,
		StatusTranscribed,
	},
	StatusSubmittedForApproval: {
		StatusQCCompleted,
		StatusTranscribed,
		StatusFormatted,
	},
	StatusQCCompleted: {
		StatusReviewerAssigned,
		StatusPreDelivered,
		StatusSubmittedForScreening,
	},
	StatusReviewerAssigned: {
		StatusFormatted,
	},
	StatusFormatted: {
		StatusReviewerAssigned,
		StatusFinalizerAssigned,
		StatusSubmittedForScreening,
	},
	StatusFinalizerAssigned: {
		StatusFinalizingCompleted,
		StatusFormatted,
	},
	StatusFinalizingCompleted: {
		StatusPreDelivered,
	},
	StatusPreDelivered: {
		StatusDelivered,
	},
	StatusSubmittedForScreening: {
		StatusTranscribed,
		StatusQCCompleted,
		StatusFormatted,
	},
}

type statusTransition struct {
	from Status
	to   Status
}

// timeoutRevertTransitions moves an order back to the state it held before
// the failed assignment.
var timeoutRevertTransitions = []statusTransition{
	{from: StatusQCAssigned, to: StatusTranscribed},
	{from: StatusReviewerAssigned, to: StatusFormatted},
	{from: StatusFinalizerAssigned, to: StatusFormatted},
}

// CanTransition reports whether status may move from one value to another.
// Cancellation edges are always listed; callers check progress separately.
func CanTransition(from, to Status) bool {
	if from == to || from.IsTerminal() {
		return false
	}
	if to == StatusCancelled || to == StatusRefunded {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RevertStatus returns the status an order falls back to when the active
// assignment in the given status is abandoned.
func RevertStatus(current Status) (Status, bool) {
	for _, t := range timeoutRevertTransitions {
		if t.from == current {
			return t.to, true
		}
	}
	return "", false
}

// StagePlan returns the stages an order type passes through, in order.
func StagePlan(t OrderType) []Stage {
	switch t {
	case TypeTranscription:
		return []Stage{StageQC}
	case TypeTranscriptionFormatting:
		return []Stage{StageQC, StageReview, StageFinalize}
	case TypeFormatting:
		return []Stage{StageReview, StageFinalize}
	default:
		return nil
	}
}

// HasStage reports whether an order type includes the stage.
func HasStage(t OrderType, stage Stage) bool {
	for _, s := range StagePlan(t) {
		if s == stage {
			return true
		}
	}
	return false
}

// NextStage returns the stage following the given one for the order type.
func NextStage(t OrderType, stage Stage) (Stage, bool) {
	plan := StagePlan(t)
	for i, s := range plan {
		if s == stage && i+1 < len(plan) {
			return plan[i+1], true
		}
	}
	return "", false
}

// InitialStatus returns the status an order enters the pipeline with.
func InitialStatus(t OrderType) Status {
	if t == TypeFormatting {
		return StatusFormatted
	}
	return StatusTranscribed
}

// ReadyStatuses lists the statuses from which the stage can be picked up.
// FORMATTED is ready for REVIEW only before a review completed and for
// FINALIZE only after; the store resolves that using job history.
func ReadyStatuses(stage Stage) []Status {
	switch stage {
	case StageQC:
		return []Status{StatusTranscribed}
	case StageReview:
		return []Status{StatusQCCompleted, StatusFormatted}
	case StageFinalize:
		return []Status{StatusFormatted}
	default:
		return nil
	}
}

// IsReady reports whether an order in status with the given review history
// may be picked up for the stage.
func IsReady(stage Stage, status Status, reviewCompleted bool) bool {
	switch stage {
	case StageQC:
		return status == StatusTranscribed
	case StageReview:
		return status == StatusQCCompleted || (status == StatusFormatted && !reviewCompleted)
	case StageFinalize:
		return status == StatusFormatted && reviewCompleted
	default:
		return false
	}
}

// StageReadyStatus returns the status an order returns to when work for the
// stage is rejected or abandoned.
func StageReadyStatus(stage Stage) Status {
	if stage == StageQC {
		return StatusTranscribed
	}
	return StatusFormatted
}

// AssignedStatus returns the status an order holds while the stage is in progress.
func AssignedStatus(stage Stage) Status {
	switch stage {
	case StageQC:
		return StatusQCAssigned
	case StageReview:
		return StatusReviewerAssigned
	case StageFinalize:
		return StatusFinalizerAssigned
	default:
		return ""
	}
}

// CompletedStatus returns the status an order moves to when the stage completes.
func CompletedStatus(stage Stage) Status {
	switch stage {
	case StageQC:
		return StatusQCCompleted
	case StageReview:
		return StatusFormatted
	case StageFinalize:
		return StatusFinalizingCompleted
	default:
		return ""
	}
}

// StageForAssignedStatus maps an assigned status back to its stage.
func StageForAssignedStatus(status Status) (Stage, bool) {
	switch status {
	case StatusQCAssigned:
		return StageQC, true
	case StatusReviewerAssigned:
		return StageReview, true
	case StatusFinalizerAssigned:
		return StageFinalize, true
	default:
		return "", false
	}
}

// DefaultInput returns the artifact a stage starts from when accepted from the queue.
func DefaultInput(stage Stage) InputKind {
	switch stage {
	case StageQC:
		return InputASROutput
	case StageReview:
		return InputQCOutput
	case StageFinalize:
		return InputReviewOutput
	default:
		return ""
	}
}

// IsScreenable reports whether an unassigned order in status may be sent to screening.
func IsScreenable(status Status) bool {
	switch status {
	case StatusTranscribed, StatusQCCompleted, StatusFormatted:
		return true
	default:
		return false
	}
}

var progressByType = map[OrderType]map[Status]int{
	TypeTranscription: {
		StatusTranscribed:           20,
		StatusSubmittedForScreening: 20,
		StatusQCAssigned:            40,
		StatusSubmittedForApproval:  60,
		StatusQCCompleted:           80,
		StatusPreDelivered:          90,
		StatusDelivered:             100,
	},
	TypeTranscriptionFormatting: {
		StatusTranscribed:           10,
		StatusSubmittedForScreening: 10,
		StatusQCAssigned:            25,
		StatusSubmittedForApproval:  35,
		StatusQCCompleted:           40,
		StatusReviewerAssigned:      50,
		StatusFormatted:             60,
		StatusFinalizerAssigned:     70,
		StatusFinalizingCompleted:   85,
		StatusPreDelivered:          95,
		StatusDelivered:             100,
	},
	TypeFormatting: {
		StatusFormatted:             20,
		StatusSubmittedForScreening: 20,
		StatusReviewerAssigned:      40,
		StatusFinalizerAssigned:     70,
		StatusFinalizingCompleted:   85,
		StatusPreDelivered:          95,
		StatusDelivered:             100,
	},
}

// Progress returns the completion percentage for an order type in a status.
// Cancelled and refunded orders report zero.
func Progress(t OrderType, status Status) int {
	return progressByType[t][status]
}
