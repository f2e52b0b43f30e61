package job

import (
	"fmt"
	"time"

	"scholarsource/pkg/cloudevent"
)

// Event types emitted for job lifecycle callbacks.
const (
	EventTypeRunning      = "scholarsource.job.running"
	EventTypeCompleted    = "scholarsource.job.completed"
	EventTypeFailed       = "scholarsource.job.failed"
	EventTypeNotification = "scholarsource.job.notification"
)

// EventSource is the CloudEvents source attribute for this service.
const EventSource = "/scholarsource/jobs"

// EventTypeFor maps a status to its lifecycle event type. Pending has none.
func EventTypeFor(s Status) (string, bool) {
	switch s {
	case StatusRunning:
		return EventTypeRunning, true
	case StatusCompleted:
		return EventTypeCompleted, true
	case StatusFailed:
		return EventTypeFailed, true
	}
	return "", false
}

// LifecycleData is the payload of running/completed/failed events.
type LifecycleData struct {
	JobID         string     `json:"job_id"`
	Status        Status     `json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	SearchTitle   string     `json:"search_title,omitempty"`
	ResourceCount int        `json:"resource_count"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewLifecycleEvent builds the event announcing rec's current status.
func NewLifecycleEvent(rec *Record) (*cloudevent.CloudEvent, bool) {
	eventType, ok := EventTypeFor(rec.Status)
	if !ok {
		return nil, false
	}
	data := LifecycleData{
		JobID:         rec.ID,
		Status:        rec.Status,
		StatusMessage: rec.StatusMessage,
		SearchTitle:   rec.SearchTitle,
		ResourceCount: len(rec.Results),
		CreatedAt:     rec.CreatedAt,
		CompletedAt:   rec.CompletedAt,
	}
	if rec.Error != nil {
		data.Error = *rec.Error
	}
	return cloudevent.New(eventType, EventSource, rec.ID, eventID(rec.ID, string(rec.Status)), data), true
}

// NotificationData is the payload of a completion notification event.
type NotificationData struct {
	JobID         string     `json:"job_id"`
	Title         string     `json:"title"`
	ResourceCount int        `json:"resource_count"`
	Resources     []Resource `json:"resources"`
}

// NewNotificationEvent builds the webhook form of a completion notification.
func NewNotificationEvent(n Notification) *cloudevent.CloudEvent {
	data := NotificationData{
		JobID:         n.JobID,
		Title:         n.Title,
		ResourceCount: len(n.Results),
		Resources:     n.Results,
	}
	return cloudevent.New(EventTypeNotification, EventSource, n.JobID, eventID(n.JobID, "notification"), data)
}

// eventID is unique per job and kind; receivers can deduplicate on it.
func eventID(jobID, kind string) string {
	return fmt.Sprintf("%s-%s", jobID, kind)
}
