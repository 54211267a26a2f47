package subsystem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/alarm-subsystem/internal/domain/place"
	"github.com/oshokin/alarm-subsystem/internal/logger"
	repo "github.com/oshokin/alarm-subsystem/internal/repository/state"
)

// Handler is the subsystem logic run inside a place executor.
type Handler interface {
	// Start is called once when a place is loaded. It must be idempotent.
	Start(c Context) error
	// Handle processes one message.
	Handle(c Context, msg Message) error
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

var (
	// ErrClosed is returned after the registry was closed.
	ErrClosed = errors.New("subsystem registry closed")
	// ErrMissingPlace is returned for messages without a place.
	ErrMissingPlace = errors.New("message has no place id")
)

const defaultQueueSize = 64

// executor is the queue of one running place.
type executor struct {
	queue chan job
	// senders counts enqueues in flight; an executor with senders is never evicted.
	senders int
}

// job is a unit of work for a place executor.
type job struct {
	ctx  context.Context
	run  func(c *PlaceContext) error
	done chan error
}

// Registry owns the place executors.
type Registry struct {
	// store persists place snapshots.
	store repo.Repository
	// handler is the subsystem logic.
	handler Handler
	// sender delivers outbound messages.
	sender Sender
	// clock is the time source for handlers.
	clock func() time.Time
	// scheduler delivers wake-ups back as timeout messages.
	scheduler *TimerScheduler
	// queueSize is the buffer of each executor queue.
	queueSize int
	// idleTimeout evicts a place after this long without work; zero keeps places forever.
	idleTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	executors map[string]*executor
	closed    bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithQueueSize overrides the executor queue size.
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithIdleTimeout evicts a place executor after d without work. The place
// is loaded again from the store on its next message. Eviction needs a
// store, so it is ignored for registries without one.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// NewRegistry creates a registry. Executors stop when ctx is done or Close is called.
func NewRegistry(ctx context.Context, store repo.Repository, handler Handler, sender Sender, options ...Option) *Registry {
	ctx, cancel := context.WithCancel(ctx)

	r := &Registry{
		store:     store,
		handler:   handler,
		sender:    sender,
		clock:     time.Now,
		queueSize: defaultQueueSize,
		ctx:       ctx,
		cancel:    cancel,
		executors: make(map[string]*executor),
	}

	for _, o := range options {
		o(r)
	}

	r.scheduler = NewTimerScheduler(r.clock, func(placeID, key string, deadline time.Time) {
		if err := r.Submit(r.ctx, NewTimeoutMessage(placeID, key, deadline)); err != nil {
			logger.WarnKV(r.ctx, "Failed to deliver timeout", "place_id", placeID, "key", key, "error", err)
		}
	})

	return r
}

// Scheduler returns the wake-up scheduler.
func (r *Registry) Scheduler() *TimerScheduler {
	return r.scheduler
}

// Submit queues a message for its place without waiting for it to be handled.
func (r *Registry) Submit(ctx context.Context, msg Message) error {
	return r.enqueue(ctx, msg.PlaceID, func(c *PlaceContext) error {
		return r.handler.Handle(c, msg)
	}, nil)
}

// Call runs fn on the place executor and waits for it to finish.
func (r *Registry) Call(ctx context.Context, placeID string, fn func(c Context) error) error {
	done := make(chan error, 1)

	if err := r.enqueue(ctx, placeID, func(c *PlaceContext) error {
		return fn(c)
	}, done); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load starts the executor of a place, running Start if it was not running.
func (r *Registry) Load(ctx context.Context, placeID string) error {
	return r.Call(ctx, placeID, func(Context) error { return nil })
}

// Active returns the number of places with a running executor.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.executors)
}

// Close stops every executor and waits for them to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.scheduler.Stop()
	r.wg.Wait()
}

func (r *Registry) enqueue(ctx context.Context, placeID string, run func(c *PlaceContext) error, done chan error) error {
	if placeID == "" {
		return ErrMissingPlace
	}

	e, err := r.acquire(placeID)
	if err != nil {
		return err
	}
	defer r.release(e)

	j := job{
		ctx:  ctx,
		run:  run,
		done: done,
	}

	select {
	case e.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrClosed
	}
}

// acquire returns the executor of a place, starting it if needed, and
// holds it against eviction until release.
func (r *Registry) acquire(placeID string) (*executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	if e, ok := r.executors[placeID]; ok {
		e.senders++

		return e, nil
	}

	e := &executor{
		queue:   make(chan job, r.queueSize),
		senders: 1,
	}
	r.executors[placeID] = e

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		r.run(placeID, e)
	}()

	return e, nil
}

func (r *Registry) release(e *executor) {
	r.mu.Lock()
	e.senders--
	r.mu.Unlock()
}

// evict removes an idle executor. It fails when a job is queued or about to be.
func (r *Registry) evict(placeID string, e *executor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.senders > 0 || len(e.queue) > 0 || r.executors[placeID] != e {
		return false
	}

	delete(r.executors, placeID)

	return true
}

// run is the executor loop of one place.
func (r *Registry) run(placeID string, e *executor) {
	ctx := logger.WithKV(logger.WithName(r.ctx, "place"), "place_id", placeID)

	var (
		snapshot = r.load(ctx, placeID)
		started  bool
		idle     <-chan time.Time
	)

	if r.idleTimeout > 0 && r.store != nil {
		ticker := time.NewTicker(r.idleTimeout)
		defer ticker.Stop()

		idle = ticker.C
	}

	busy := false

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-idle:
			if busy {
				busy = false

				continue
			}

			if r.evict(placeID, e) {
				logger.DebugKV(ctx, "Place evicted after idle timeout")

				return
			}
		case j := <-e.queue:
			busy = true

			jobCtx := logger.ToContext(context.WithoutCancel(j.ctx), logger.FromContext(ctx))

			if !started {
				started = r.start(jobCtx, snapshot)
			}

			err := r.process(jobCtx, snapshot, j.run)
			if j.done != nil {
				j.done <- err
			} else if err != nil {
				logger.WarnKV(jobCtx, "Failed to handle message", "error", err)
			}
		}
	}
}

// load reads the place snapshot. A place that was never saved, or whose
// snapshot could not be read, starts empty.
func (r *Registry) load(ctx context.Context, placeID string) *place.Snapshot {
	if r.store == nil {
		return place.NewSnapshot(placeID)
	}

	snapshot, err := r.store.Load(ctx, placeID)
	switch {
	case err == nil:
		return snapshot
	case errors.Is(err, repo.ErrNotFound):
		return place.NewSnapshot(placeID)
	default:
		logger.ErrorKV(ctx, "Failed to load place", "error", err)

		return place.NewSnapshot(placeID)
	}
}

// start runs the handler's Start hook on a freshly loaded place.
func (r *Registry) start(ctx context.Context, snapshot *place.Snapshot) bool {
	err := r.process(ctx, snapshot, func(c *PlaceContext) error {
		return r.handler.Start(c)
	})
	if err != nil {
		logger.ErrorKV(ctx, "Failed to start place", "error", err)
	}

	return true
}

// process runs one job, saves the snapshot and flushes the outbox.
func (r *Registry) process(ctx context.Context, snapshot *place.Snapshot, run func(c *PlaceContext) error) error {
	c := NewPlaceContext(ctx, snapshot, r.clock, r.scheduler)

	runErr := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("handler panic: %v", p)
			}
		}()

		return run(c)
	}()

	if r.store != nil {
		if err := r.store.Save(ctx, snapshot); err != nil {
			logger.ErrorKV(ctx, "Failed to save place", "error", err)

			if runErr == nil {
				runErr = fmt.Errorf("save place: %w", err)
			}
		}
	}

	if r.sender != nil {
		for _, msg := range c.Outbox() {
			if err := r.sender.Send(ctx, msg); err != nil {
				logger.WarnKV(ctx, "Failed to send message", "type", msg.Type, "error", err)
			}
		}
	}

	return runErr
}
