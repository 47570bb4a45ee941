package notifications

import (
	"fmt"
	"strings"
)

// Template names a notification the engine can emit. The set is closed;
// unknown names are rejected when a message is built.
type Template string

const (
	TemplateQCJobAssigned         Template = "QC_JOB_ASSIGNED"
	TemplateReviewJobAssigned     Template = "REVIEW_JOB_ASSIGNED"
	TemplateFinalizeJobAssigned   Template = "FINALIZE_JOB_ASSIGNED"
	TemplateJobUnassigned         Template = "JOB_UNASSIGNED"
	TemplateTranscriberSubmit     Template = "TRANSCRIBER_SUBMIT"
	TemplateSubmittedForApproval  Template = "SUBMITTED_FOR_APPROVAL"
	TemplateSubmissionRejected    Template = "SUBMISSION_REJECTED"
	TemplateJobTimeoutWarning     Template = "JOB_TIMEOUT_WARNING"
	TemplateQCJobTimeout          Template = "QC_JOB_TIMEOUT"
	TemplateReviewJobTimeout      Template = "REVIEW_JOB_TIMEOUT"
	TemplatePendingFilesAlert     Template = "PENDING_FILES_ALERT"
	TemplateOrderDelivered        Template = "ORDER_DELIVERED"
	TemplateTranscriptCancelOrder Template = "TRANSCRIPT_CANCEL_ORDER"
	TemplateExtensionGranted      Template = "EXTENSION_GRANTED"
)

type rendering struct {
	title    string
	format   func(Payload) string
	tags     []string
	priority string
}

var templates = map[Template]rendering{
	TemplateQCJobAssigned: {
		title:  "QC job assigned",
		format: func(p Payload) string { return fmt.Sprintf("QC job for %s is yours", p.String("filename")) },
		tags:   []string{"orderflow", "qc", "assigned"},
	},
	TemplateReviewJobAssigned: {
		title:  "Review job assigned",
		format: func(p Payload) string { return fmt.Sprintf("Review job for %s is yours", p.String("filename")) },
		tags:   []string{"orderflow", "review", "assigned"},
	},
	TemplateFinalizeJobAssigned: {
		title:  "Finalize job assigned",
		format: func(p Payload) string { return fmt.Sprintf("Finalize job for %s is yours", p.String("filename")) },
		tags:   []string{"orderflow", "finalize", "assigned"},
	},
	TemplateJobUnassigned: {
		title:  "Job unassigned",
		format: func(p Payload) string { return fmt.Sprintf("You were removed from %s", p.String("filename")) },
		tags:   []string{"orderflow", "unassigned"},
	},
	TemplateTranscriberSubmit: {
		title:  "Submission received",
		format: func(p Payload) string { return fmt.Sprintf("%s submitted %s", p.String("stage"), p.String("filename")) },
		tags:   []string{"orderflow", "submit"},
	},
	TemplateSubmittedForApproval: {
		title: "Submission needs approval",
		format: func(p Payload) string {
			return fmt.Sprintf("%s scored %s on %s", p.String("worker_id"), p.String("score"), p.String("filename"))
		},
		tags:     []string{"orderflow", "qc", "approval"},
		priority: "high",
	},
	TemplateSubmissionRejected: {
		title:  "Submission rejected",
		format: func(p Payload) string { return fmt.Sprintf("Your submission for %s was rejected", p.String("filename")) },
		tags:   []string{"orderflow", "rejected"},
	},
	TemplateJobTimeoutWarning: {
		title: "Deadline approaching",
		format: func(p Payload) string {
			return fmt.Sprintf("%s is due in %s", p.String("filename"), p.String("remaining"))
		},
		tags:     []string{"orderflow", "deadline", "warning"},
		priority: "high",
	},
	TemplateQCJobTimeout: {
		title:  "QC job timed out",
		format: func(p Payload) string { return fmt.Sprintf("QC job for %s was released after the deadline", p.String("filename")) },
		tags:   []string{"orderflow", "qc", "timeout"},
	},
	TemplateReviewJobTimeout: {
		title:  "Review job timed out",
		format: func(p Payload) string { return fmt.Sprintf("Review job for %s was released after the deadline", p.String("filename")) },
		tags:   []string{"orderflow", "review", "timeout"},
	},
	TemplatePendingFilesAlert: {
		title:    "Files pending pickup",
		format:   func(p Payload) string { return fmt.Sprintf("%s files moved to screening", p.String("count")) },
		tags:     []string{"orderflow", "escalation"},
		priority: "high",
	},
	TemplateOrderDelivered: {
		title:  "Order delivered",
		format: func(p Payload) string { return fmt.Sprintf("%s is ready", p.String("filename")) },
		tags:   []string{"orderflow", "delivered"},
	},
	TemplateTranscriptCancelOrder: {
		title:  "Order cancelled",
		format: func(p Payload) string { return fmt.Sprintf("Order for %s was cancelled", p.String("filename")) },
		tags:   []string{"orderflow", "cancelled"},
	},
	TemplateExtensionGranted: {
		title:  "Extension granted",
		format: func(p Payload) string { return fmt.Sprintf("Extra time granted for %s", p.String("filename")) },
		tags:   []string{"orderflow", "extension"},
	},
}

// ParseTemplate converts a string into a known Template.
func ParseTemplate(value string) (Template, bool) {
	t := Template(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := templates[t]
	return t, ok
}

// Payload carries template variables.
type Payload map[string]any

// String returns the value for key formatted for display, or "unknown".
func (p Payload) String(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return "unknown"
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "" {
		return "unknown"
	}
	return text
}

func render(msg Message) rendering {
	return templates[msg.Template]
}
