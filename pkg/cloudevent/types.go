// Package cloudevent builds, signs and delivers CloudEvents 1.0 over HTTP
// in structured content mode.
package cloudevent

import "time"

// SpecVersion is the CloudEvents version this package produces.
const SpecVersion = "1.0"

// CloudEvent is a structured-mode CloudEvents envelope.
type CloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            any       `json:"data,omitempty"`
}

// New creates an event stamped with the current UTC time.
func New(eventType, source, subject, id string, data any) *CloudEvent {
	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		Subject:         subject,
		ID:              id,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}
}
