package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/seisnode/internal/streamid"
	"github.com/smazurov/seisnode/internal/waveform"
)

var (
	// ErrAlreadyRunning is returned by Start for a stream whose task is active.
	ErrAlreadyRunning = errors.New("task already running")

	// ErrNotRunning is returned by Dispatch when no task accepts the stream.
	ErrNotRunning = errors.New("no running task for stream")

	// ErrInboxFull is returned by Dispatch when the packet was dropped.
	ErrInboxFull = errors.New("task inbox full")

	// ErrPoolClosed is returned after StopAll.
	ErrPoolClosed = errors.New("pool closed")

	// ErrStopTimeout is returned by Stop when the task outlives StopTimeout.
	// The stream stays in StateStopping until the task returns.
	ErrStopTimeout = errors.New("timed out waiting for task to stop")
)

// Pool manages one task per stream with lifecycle control.
type Pool interface {
	// Start starts the task for a stream. Returns ErrAlreadyRunning if active.
	Start(id streamid.StreamID) error

	// Stop cancels a stream's task and waits for it to return.
	Stop(id streamid.StreamID) error

	// Restart stops the task and starts a fresh one from the TaskProvider.
	Restart(id streamid.StreamID) error

	// Dispatch queues a packet for its stream's task.
	Dispatch(pkt waveform.Packet) error

	// GetStatus returns task info. Returns idle state if not found.
	GetStatus(id streamid.StreamID) *Info

	// IsRunning checks if a stream's task is currently running.
	IsRunning(id streamid.StreamID) bool

	// Has reports whether the pool tracks a task for the stream in any state.
	Has(id streamid.StreamID) bool

	// List returns info for every known task ordered by stream identifier.
	List() []Info

	// StopAll stops every task and closes the pool.
	StopAll()
}

// managedTask tracks a task within the pool. Fields other than the counters
// are guarded by pool.mu.
type managedTask struct {
	id           streamid.StreamID
	state        State
	startedAt    time.Time
	restartCount int
	lastError    error
	inbox        chan waveform.Packet
	cancel       context.CancelFunc
	done         chan struct{}

	// abandoned is set when Stop gave up waiting; runTask then removes the
	// entry once the task finally returns.
	abandoned bool

	dispatched atomic.Uint64
	dropped    atomic.Uint64
}

type pool struct {
	opts   PoolOptions
	tasks  map[streamid.StreamID]*managedTask
	mu     sync.RWMutex
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a new task pool.
func NewPool(opts *PoolOptions) Pool {
	if opts == nil || opts.TaskProvider == nil {
		panic("PoolOptions with TaskProvider is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := *opts
	if o.InboxSize <= 0 {
		o.InboxSize = defaultInboxSize
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}

	return &pool{
		opts:   o,
		tasks:  make(map[streamid.StreamID]*managedTask),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *pool) Start(id streamid.StreamID) error {
	return p.start(id, 0)
}

func (p *pool) start(id streamid.StreamID, restarts int) error {
	if p.ctx.Err() != nil {
		return ErrPoolClosed
	}

	p.mu.Lock()
	if existing, exists := p.tasks[id]; exists {
		if existing.state.Active() {
			p.mu.Unlock()
			return fmt.Errorf("stream %s: %w", id, ErrAlreadyRunning)
		}
		if existing.state == StateStopping {
			p.mu.Unlock()
			return fmt.Errorf("stream %s is stopping", id)
		}
		restarts = max(restarts, existing.restartCount+1)
	}

	task, err := p.opts.TaskProvider(id)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to build task for %s: %w", id, err)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	mt := &managedTask{
		id:           id,
		state:        StateStarting,
		startedAt:    time.Now(),
		restartCount: restarts,
		inbox:        make(chan waveform.Packet, p.opts.InboxSize),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	p.tasks[id] = mt
	p.mu.Unlock()

	p.notifyStateChange(id, StateIdle, StateStarting, nil)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(mt.done)
		p.runTask(ctx, mt, task)
	}()

	return nil
}

// runTask runs the task and handles state transitions.
func (p *pool) runTask(ctx context.Context, mt *managedTask, task Task) {
	p.mu.Lock()
	oldState := mt.state
	if oldState == StateStarting {
		mt.state = StateRunning
	}
	newState := mt.state
	p.mu.Unlock()
	if newState != oldState {
		p.notifyStateChange(mt.id, oldState, newState, nil)
	}

	p.logger.Debug("Task started", "stream_id", mt.id.String())
	err := p.invoke(ctx, mt, task)

	p.mu.Lock()
	oldState = mt.state
	switch {
	case ctx.Err() != nil:
		mt.state = StateIdle
	case err != nil:
		mt.state = StateError
		mt.lastError = err
		p.logger.Error("Task failed", "stream_id", mt.id.String(), "error", err)
	default:
		mt.state = StateIdle
	}
	newState = mt.state
	lastErr := mt.lastError
	if mt.abandoned && p.tasks[mt.id] == mt {
		delete(p.tasks, mt.id)
	}
	p.mu.Unlock()

	p.notifyStateChange(mt.id, oldState, newState, lastErr)
	p.logger.Debug("Task stopped", "stream_id", mt.id.String())
}

// invoke runs task and converts a panic into an error.
func (p *pool) invoke(ctx context.Context, mt *managedTask, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx, mt.id, mt.inbox)
}

func (p *pool) Stop(id streamid.StreamID) error {
	p.mu.Lock()
	mt, exists := p.tasks[id]
	if !exists {
		p.mu.Unlock()
		return nil
	}

	if !mt.state.Active() {
		delete(p.tasks, id)
		p.mu.Unlock()
		return nil
	}

	oldState := mt.state
	mt.state = StateStopping
	p.mu.Unlock()

	p.notifyStateChange(id, oldState, StateStopping, nil)
	p.logger.Info("Stopping task", "stream_id", id.String())

	mt.cancel()

	select {
	case <-mt.done:
	case <-time.After(p.opts.StopTimeout):
		p.mu.Lock()
		if mt.state != StateStopping {
			// Returned between the timer firing and taking the lock.
			if p.tasks[id] == mt {
				delete(p.tasks, id)
			}
			p.mu.Unlock()
			return nil
		}
		mt.abandoned = true
		p.mu.Unlock()
		p.logger.Warn("Timeout waiting for task to stop", "stream_id", id.String())
		return fmt.Errorf("stream %s: %w", id, ErrStopTimeout)
	}

	p.mu.Lock()
	if p.tasks[id] == mt {
		delete(p.tasks, id)
	}
	p.mu.Unlock()

	return nil
}

func (p *pool) Restart(id streamid.StreamID) error {
	p.logger.Info("Restarting task", "stream_id", id.String())

	p.mu.RLock()
	restarts := 0
	if mt, exists := p.tasks[id]; exists {
		restarts = mt.restartCount + 1
	}
	p.mu.RUnlock()

	if err := p.Stop(id); err != nil {
		return fmt.Errorf("failed to stop task: %w", err)
	}
	return p.start(id, restarts)
}

func (p *pool) Dispatch(pkt waveform.Packet) error {
	mt := p.activeTask(pkt.Stream)
	if mt == nil {
		if !p.opts.AutoStart {
			return fmt.Errorf("stream %s: %w", pkt.Stream, ErrNotRunning)
		}
		if err := p.Start(pkt.Stream); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return err
		}
		if mt = p.activeTask(pkt.Stream); mt == nil {
			return fmt.Errorf("stream %s: %w", pkt.Stream, ErrNotRunning)
		}
	}

	select {
	case mt.inbox <- pkt:
		mt.dispatched.Add(1)
		return nil
	default:
		mt.dropped.Add(1)
		if p.opts.OnDrop != nil {
			p.opts.OnDrop(pkt)
		}
		return fmt.Errorf("stream %s: %w", pkt.Stream, ErrInboxFull)
	}
}

func (p *pool) activeTask(id streamid.StreamID) *managedTask {
	p.mu.RLock()
	defer p.mu.RUnlock()
	mt, exists := p.tasks[id]
	if !exists || !mt.state.Active() {
		return nil
	}
	return mt
}

func (p *pool) GetStatus(id streamid.StreamID) *Info {
	p.mu.RLock()
	defer p.mu.RUnlock()

	mt, exists := p.tasks[id]
	if !exists {
		return &Info{ID: id, State: StateIdle}
	}
	info := mt.info()
	return &info
}

func (p *pool) IsRunning(id streamid.StreamID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	mt, exists := p.tasks[id]
	return exists && mt.state == StateRunning
}

func (p *pool) Has(id streamid.StreamID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.tasks[id]
	return exists
}

func (p *pool) List() []Info {
	p.mu.RLock()
	infos := make([]Info, 0, len(p.tasks))
	for _, mt := range p.tasks {
		infos = append(infos, mt.info())
	}
	p.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID.ID() < infos[j].ID.ID()
	})
	return infos
}

func (p *pool) StopAll() {
	p.logger.Info("Stopping all tasks")
	p.cancel()

	p.mu.RLock()
	ids := make([]streamid.StreamID, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		_ = p.Stop(id)
	}

	p.wg.Wait()
	p.logger.Info("All tasks stopped")
}

// info snapshots the task. Callers hold pool.mu.
func (mt *managedTask) info() Info {
	return Info{
		ID:           mt.id,
		State:        mt.state,
		StartedAt:    mt.startedAt,
		RestartCount: mt.restartCount,
		Queued:       len(mt.inbox),
		Dispatched:   mt.dispatched.Load(),
		Dropped:      mt.dropped.Load(),
		LastError:    mt.lastError,
	}
}

func (p *pool) notifyStateChange(id streamid.StreamID, oldState, newState State, err error) {
	if p.opts.OnStateChange != nil {
		p.opts.OnStateChange(id, oldState, newState, err)
	}
}
