package worker

import (
	"time"

	"github.com/smazurov/seisnode/internal/streamid"
)

// State represents the current state of a stream task.
type State string

// Task states.
const (
	StateIdle     State = "idle"     // Not running
	StateStarting State = "starting" // Being started
	StateRunning  State = "running"  // Consuming its inbox
	StateStopping State = "stopping" // Being stopped
	StateError    State = "error"    // Task returned an error or panicked
)

// Active reports whether a task in this state accepts packets.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning
}

// Info contains information about a stream task.
type Info struct {
	ID           streamid.StreamID
	State        State
	StartedAt    time.Time
	RestartCount int
	Queued       int
	Dispatched   uint64
	Dropped      uint64
	LastError    error
}
