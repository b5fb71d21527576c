package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/waveform"
)

// Task consumes a stream's packets until ctx is cancelled. Returning a
// non-nil error before cancellation puts the task into StateError.
type Task func(ctx context.Context, id streamid.StreamID, inbox <-chan waveform.Packet) error

// TaskProvider builds the task for a stream, typically from its configured spec.
type TaskProvider func(id streamid.StreamID) (Task, error)

// StateChangeCallback is called after a task changes state, outside the pool lock.
type StateChangeCallback func(id streamid.StreamID, oldState, newState State, err error)

// DropCallback is called when a packet is dropped because the inbox is full.
type DropCallback func(pkt waveform.Packet)

// PoolOptions configures a new Pool.
type PoolOptions struct {
	// TaskProvider builds the task for a stream (required).
	TaskProvider TaskProvider

	// OnStateChange is called when a task transitions (optional).
	OnStateChange StateChangeCallback

	// OnDrop is called for every dropped packet (optional).
	OnDrop DropCallback

	// InboxSize bounds each task's queue. Defaults to 64.
	InboxSize int

	// AutoStart makes Dispatch start a task for streams that have none.
	AutoStart bool

	// StopTimeout bounds how long Stop waits for a task to return. Defaults to 10s.
	StopTimeout time.Duration

	// Logger for pool operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

const (
	defaultInboxSize   = 64
	defaultStopTimeout = 10 * time.Second
)
