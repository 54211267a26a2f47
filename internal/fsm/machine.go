package fsm

import (
	"errors"
	"fmt"

	"github.com/oshokin/alarm-subsystem/internal/logger"
)

// ErrUnknownState is returned when a persisted name does not resolve to a state.
var ErrUnknownState = errors.New("unknown state")

// Hook names reported to failure handlers.
const (
	HookStarted = "onStarted"
	HookEnter   = "onEnter"
	HookExit    = "onExit"
	HookTimeout = "onTimeout"
)

// Observer is notified after every persisted step.
type Observer[C Context] func(c C, from, to string)

// FailureHandler is notified when a hook returns an error or panics.
type FailureHandler func(state, hook string, err error)

// Persistence reads and writes the current state name.
type Persistence[C Context] struct {
	Load func(c C) string
	Save func(c C, name string)
}

// Machine drives the states returned by a resolver.
type Machine[C Context] struct {
	name        string
	initial     string
	resolve     func(name string) (State[C], error)
	persistence Persistence[C]
	observers   []Observer[C]
	onFailure   FailureHandler

	current State[C]
}

// Option configures a Machine.
type Option[C Context] func(*Machine[C])

// WithObserver registers an observer of persisted steps.
func WithObserver[C Context](o Observer[C]) Option[C] {
	return func(m *Machine[C]) {
		m.observers = append(m.observers, o)
	}
}

// WithFailureHandler registers a handler for swallowed hook failures.
func WithFailureHandler[C Context](h FailureHandler) Option[C] {
	return func(m *Machine[C]) {
		m.onFailure = h
	}
}

// New creates a machine. initial is used when nothing has been persisted yet.
func New[C Context](
	name, initial string,
	resolve func(name string) (State[C], error),
	persistence Persistence[C],
	options ...Option[C],
) *Machine[C] {
	m := &Machine[C]{
		name:        name,
		initial:     initial,
		resolve:     resolve,
		persistence: persistence,
	}

	for _, o := range options {
		o(m)
	}

	return m
}

// Name returns the machine name.
func (m *Machine[C]) Name() string {
	return m.name
}

// Current returns the current state, loading it from the host on first use.
//
//nolint:ireturn // States are a closed set of implementations.
func (m *Machine[C]) Current(c C) (State[C], error) {
	if m.current != nil {
		return m.current, nil
	}

	name := m.persistence.Load(c)
	if name == "" {
		name = m.initial
	}

	s, err := m.resolve(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.name, err)
	}

	m.current = s

	return s, nil
}

// Transition moves the machine to next, following OnEnter chains.
// It is a no-op when next is the current state.
func (m *Machine[C]) Transition(c C, next string) error {
	current, err := m.Current(c)
	if err != nil {
		return err
	}

	if next == "" || next == current.Name() {
		return nil
	}

	target, err := m.resolve(next)
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	m.call(c, current.Name(), HookExit, func() error {
		return current.OnExit(c)
	})

	from := current.Name()
	m.current = target
	m.persistence.Save(c, target.Name())

	logger.DebugKV(c.Context(), "state changed", "machine", m.name, "from", from, "to", target.Name())

	for _, o := range m.observers {
		o(c, from, target.Name())
	}

	following := target.Name()

	m.call(c, target.Name(), HookEnter, func() error {
		n, hookErr := target.OnEnter(c)
		if hookErr == nil {
			following = n
		}

		return hookErr
	})

	return m.Transition(c, following)
}

// OnStarted re-enters the persisted state after a restart.
func (m *Machine[C]) OnStarted(c C) error {
	current, err := m.Current(c)
	if err != nil {
		return err
	}

	next := current.Name()

	m.call(c, current.Name(), HookStarted, func() error {
		n, hookErr := current.OnStarted(c)
		if hookErr == nil {
			next = n
		}

		return hookErr
	})

	return m.Transition(c, next)
}

// OnTimeout handles a fired wake-up. Events for other states, or whose
// deadline marker is gone, are ignored.
func (m *Machine[C]) OnTimeout(c C, event TimeoutEvent) error {
	current, err := m.Current(c)
	if err != nil {
		return err
	}

	key := current.TimeoutKey()
	if key == "" || key != event.Key {
		return nil
	}

	deadline, ok := Timeout(c, key)
	if !ok {
		return nil
	}

	if !event.Deadline.IsZero() && !event.Deadline.Equal(deadline) {
		return nil
	}

	CancelTimeout(c, key)

	next := current.Name()

	m.call(c, current.Name(), HookTimeout, func() error {
		n, hookErr := current.OnTimeout(c)
		if hookErr == nil {
			next = n
		}

		return hookErr
	})

	return m.Transition(c, next)
}

// call runs a hook, turning panics into errors and swallowing both.
func (m *Machine[C]) call(c C, state, hook string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		return fn()
	}()
	if err == nil {
		return
	}

	logger.WarnKV(c.Context(), "state hook failed",
		"machine", m.name,
		"state", state,
		"hook", hook,
		"error", err,
	)

	if m.onFailure != nil {
		m.onFailure(state, hook, err)
	}
}
