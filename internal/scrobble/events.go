package scrobble

import "time"

// EventType identifies what the monitor just did.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventScrobbled    EventType = "scrobbled"
)

// Event is published on the monitor's event channel so the status broadcaster
// and the history recorder can observe the engine without touching its lock.
type Event struct {
	Type    EventType    `json:"type"`
	Time    time.Time    `json:"time"`
	Report  *Report      `json:"report,omitempty"`
	Session *SessionInfo `json:"session,omitempty"`
}
