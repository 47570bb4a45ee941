package assignment

import (
	"orderflow/internal/notifications"
	"orderflow/internal/orders"
)

func assignedTemplate(stage orders.Stage) notifications.Template {
	switch stage {
	case orders.StageReview:
		return notifications.TemplateReviewJobAssigned
	case orders.StageFinalize:
		return notifications.TemplateFinalizeJobAssigned
	default:
		return notifications.TemplateQCJobAssigned
	}
}

func filePayload(file *orders.File, job orders.Job) notifications.Payload {
	payload := notifications.Payload{
		"stage":     string(job.Stage),
		"worker_id": job.WorkerID,
		"job_id":    job.ID,
	}
	if file != nil {
		payload["filename"] = file.Filename
		payload["file_id"] = file.ID
	}
	if job.OrderID != "" {
		payload["order_id"] = job.OrderID
	}
	return payload
}

func assignedMessage(job orders.Job, file *orders.File) notifications.Message {
	return notifications.MustMessage(assignedTemplate(job.Stage), job.WorkerID, filePayload(file, job))
}

func unassignedMessage(job orders.Job, file *orders.File, reason string) notifications.Message {
	payload := filePayload(file, job)
	payload["reason"] = reason
	return notifications.MustMessage(notifications.TemplateJobUnassigned, job.WorkerID, payload)
}

func submitMessage(job orders.Job, file *orders.File) notifications.Message {
	return notifications.MustMessage(notifications.TemplateTranscriberSubmit, job.WorkerID, filePayload(file, job))
}

func approvalMessage(recipient string, job orders.Job, file *orders.File, score float64) notifications.Message {
	payload := filePayload(file, job)
	payload["score"] = score
	return notifications.MustMessage(notifications.TemplateSubmittedForApproval, recipient, payload)
}

func rejectedMessage(job orders.Job, file *orders.File, comment string) notifications.Message {
	payload := filePayload(file, job)
	payload["comment"] = comment
	return notifications.MustMessage(notifications.TemplateSubmissionRejected, job.WorkerID, payload)
}

func extensionMessage(job orders.Job, file *orders.File) notifications.Message {
	return notifications.MustMessage(notifications.TemplateExtensionGranted, job.WorkerID, filePayload(file, job))
}

func orderPayload(order *orders.Order, file *orders.File) notifications.Payload {
	payload := notifications.Payload{"order_id": order.ID}
	if file != nil {
		payload["filename"] = file.Filename
		payload["file_id"] = file.ID
	}
	return payload
}

func deliveredMessage(order *orders.Order, file *orders.File) notifications.Message {
	return notifications.MustMessage(notifications.TemplateOrderDelivered, order.OwnerID, orderPayload(order, file))
}

func cancelledMessage(order *orders.Order, file *orders.File, refund bool, reason string) notifications.Message {
	payload := orderPayload(order, file)
	payload["refund"] = refund
	payload["reason"] = reason
	return notifications.MustMessage(notifications.TemplateTranscriptCancelOrder, order.OwnerID, payload)
}
