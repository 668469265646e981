package realtime

import "time"

// Status is the connection state of a Client.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusEvent is published on every state transition. Attempt and Delay are
// set while reconnecting; Err carries the failure that caused the transition.
type StatusEvent struct {
	Status  Status
	Attempt int
	Delay   time.Duration
	Err     error
}
