package types

import "time"

type EventType string

const (
	EventStateChanged    EventType = "state-changed"
	EventStatus          EventType = "status"
	EventMountSuccessful EventType = "mount-successful"
	EventMountTerminated EventType = "mount-terminated"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

// Event is what the supervisor reports to its sink.
type Event struct {
	Type     EventType `json:"type"`
	Severity Severity  `json:"severity,omitempty"`
	Message  string    `json:"message,omitempty"`
	State    string    `json:"state,omitempty"`
	Profile  string    `json:"profile,omitempty"`
	Source   string    `json:"source,omitempty"` // id of the publishing event bus
	Time     time.Time `json:"time"`
}
