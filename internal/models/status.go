package models

import "time"

// RunState is the lifecycle state the worker publishes for other contexts
type RunState string

// RunState constants
const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StateStopped RunState = "stopped"
	StateError   RunState = "error"
)

// StatusStaleAfter is how old a running status may get before readers ignore it
const StatusStaleAfter = 10 * time.Second

// BackgroundStatus is the worker progress snapshot shared through the store.
// LastUpdate is a unix timestamp in milliseconds.
type BackgroundStatus struct {
	State      RunState `json:"state"`
	Current    string   `json:"current"`
	Progress   int      `json:"progress"`
	Total      int      `json:"total"`
	LastUpdate int64    `json:"lastUpdate"`
	WorkerID   string   `json:"workerId,omitempty"`
}

// UpdatedAt returns LastUpdate as a time
func (s BackgroundStatus) UpdatedAt() time.Time {
	return time.UnixMilli(s.LastUpdate)
}

// IsRunning reports whether a worker is actively stepping the queue.
// A running status older than StatusStaleAfter is not trusted.
func (s BackgroundStatus) IsRunning(now time.Time) bool {
	if s.State != StateRunning {
		return false
	}
	return now.Sub(s.UpdatedAt()) < StatusStaleAfter
}

// Command is a one-shot instruction from the controller to the worker
type Command string

// CommandStop asks the worker to halt on its next step
const CommandStop Command = "stop"

// Outcome classifies a single block attempt
type Outcome string

// Outcome constants
const (
	OutcomeSuccess        Outcome = "success"
	OutcomeAlreadyBlocked Outcome = "already_blocked"
	OutcomeFailed         Outcome = "failed"
	OutcomeCooldown       Outcome = "cooldown"
)

// Done reports whether the outcome means the account ends up blocked
func (o Outcome) Done() bool {
	return o == OutcomeSuccess || o == OutcomeAlreadyBlocked
}

// DesktopMode selects where a submitted selection is executed
type DesktopMode string

// DesktopMode constants
const (
	ModeBackground DesktopMode = "background"
	ModeForeground DesktopMode = "foreground"
)

// Toggle returns the other mode
func (m DesktopMode) Toggle() DesktopMode {
	if m == ModeForeground {
		return ModeBackground
	}
	return ModeForeground
}
