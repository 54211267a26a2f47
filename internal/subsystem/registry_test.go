package subsystem_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-subsystem/internal/fsm"
	repo "github.com/oshokin/alarm-subsystem/internal/repository/state"
	"github.com/oshokin/alarm-subsystem/internal/subsystem"
)

const (
	messageSchedule = "test:Schedule"
	messageFired    = "test:Fired"
	messageFail     = "test:Fail"
	messagePanic    = "test:Panic"
	timeoutKey      = "TEST.WAIT"
)

var errHandler = errors.New("handler failed")

type recordingHandler struct {
	mu      sync.Mutex
	started int
	handled []string
}

func (h *recordingHandler) Start(c subsystem.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.started++
	c.Model().Set("test:started", "true")

	return nil
}

func (h *recordingHandler) Handle(c subsystem.Context, msg subsystem.Message) error {
	h.mu.Lock()
	h.handled = append(h.handled, msg.Type)
	h.mu.Unlock()

	switch msg.Type {
	case messageSchedule:
		fsm.SetTimeoutAfter(c, timeoutKey, time.Minute)
	case subsystem.MessageTimeout:
		c.Send(subsystem.Message{Type: messageFired, Attributes: msg.Attributes})
	case messageFail:
		return errHandler
	case messagePanic:
		panic("boom")
	}

	return nil
}

func (h *recordingHandler) snapshot() (int, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.started, append([]string(nil), h.handled...)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []subsystem.Message
}

func (s *recordingSender) Send(_ context.Context, msg subsystem.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, msg)

	return nil
}

func (s *recordingSender) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Type)
	}

	return out
}

// TestRegistry_StartsOnceAndSaves checks that a place is started on its first
// job only and that every job persists the snapshot.
func TestRegistry_StartsOnceAndSaves(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx     = t.Context()
			store   = repo.NewMemoryRepository()
			handler = &recordingHandler{}
			r       = subsystem.NewRegistry(ctx, store, handler, nil)
		)
		defer r.Close()

		require.NoError(t, r.Submit(ctx, subsystem.Message{Type: "test:One", PlaceID: "p1"}))
		require.NoError(t, r.Call(ctx, "p1", func(c subsystem.Context) error {
			c.Model().Set("test:called", "yes")

			return nil
		}))

		started, handled := handler.snapshot()
		require.Equal(t, 1, started)
		require.Equal(t, []string{"test:One"}, handled)

		saved, err := store.Load(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, "true", saved.Attributes["test:started"])
		require.Equal(t, "yes", saved.Attributes["test:called"])
	})
}

// TestRegistry_RestoresSavedPlace checks that a new registry resumes from the store.
func TestRegistry_RestoresSavedPlace(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := t.Context()
		store := repo.NewMemoryRepository()

		first := subsystem.NewRegistry(ctx, store, &recordingHandler{}, nil)
		require.NoError(t, first.Call(ctx, "p1", func(c subsystem.Context) error {
			c.SetVariable("test:var", "kept")

			return nil
		}))
		first.Close()

		second := subsystem.NewRegistry(ctx, store, &recordingHandler{}, nil)
		defer second.Close()

		var got string

		require.NoError(t, second.Call(ctx, "p1", func(c subsystem.Context) error {
			got, _ = c.Variable("test:var")

			return nil
		}))
		require.Equal(t, "kept", got)
	})
}

// TestRegistry_EvictsIdlePlaces checks that an idle place is unloaded and
// comes back from the store on its next message.
func TestRegistry_EvictsIdlePlaces(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx     = t.Context()
			handler = &recordingHandler{}
			r       = subsystem.NewRegistry(ctx, repo.NewMemoryRepository(), handler, nil,
				subsystem.WithIdleTimeout(time.Minute))
		)
		defer r.Close()

		require.NoError(t, r.Call(ctx, "p1", func(c subsystem.Context) error {
			c.SetVariable("test:var", "kept")

			return nil
		}))
		require.Equal(t, 1, r.Active())

		time.Sleep(30 * time.Second)
		require.NoError(t, r.Load(ctx, "p2"))
		require.Equal(t, 2, r.Active())

		time.Sleep(2*time.Minute + time.Second)
		synctest.Wait()
		require.Equal(t, 0, r.Active())

		var got string

		require.NoError(t, r.Call(ctx, "p1", func(c subsystem.Context) error {
			got, _ = c.Variable("test:var")

			return nil
		}))
		require.Equal(t, "kept", got)
		require.Equal(t, 1, r.Active())

		started, _ := handler.snapshot()
		require.Equal(t, 3, started, "p1 is started again after eviction")
	})
}

// TestRegistry_KeepsPlacesWithoutStore checks that a registry without a
// store never evicts, since the place would lose its state.
func TestRegistry_KeepsPlacesWithoutStore(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := t.Context()
		r := subsystem.NewRegistry(ctx, nil, &recordingHandler{}, nil, subsystem.WithIdleTimeout(time.Minute))
		defer r.Close()

		require.NoError(t, r.Load(ctx, "p1"))

		time.Sleep(time.Hour)
		synctest.Wait()
		require.Equal(t, 1, r.Active())
	})
}

// TestRegistry_DeliversTimeouts checks that a scheduled wake-up comes back to
// the place as a timeout message and that outbound messages are flushed.
func TestRegistry_DeliversTimeouts(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx    = t.Context()
			sender = &recordingSender{}
			r      = subsystem.NewRegistry(ctx, repo.NewMemoryRepository(), &recordingHandler{}, sender)
		)
		defer r.Close()

		require.NoError(t, r.Submit(ctx, subsystem.Message{Type: messageSchedule, PlaceID: "p1"}))
		synctest.Wait()
		require.Equal(t, 1, r.Scheduler().Pending())
		require.Empty(t, sender.types())

		time.Sleep(time.Minute + time.Second)
		synctest.Wait()

		require.Equal(t, []string{messageFired}, sender.types())
		require.Equal(t, 0, r.Scheduler().Pending())

		sender.mu.Lock()
		fired := sender.sent[0]
		sender.mu.Unlock()

		require.Equal(t, "p1", fired.PlaceID)
		require.Equal(t, timeoutKey, fired.Attribute(subsystem.AttrTimeoutKey))
	})
}

// TestRegistry_HandlerFailures checks that errors and panics reach Call and
// do not stop the executor.
func TestRegistry_HandlerFailures(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var (
			ctx     = t.Context()
			handler = &recordingHandler{}
			r       = subsystem.NewRegistry(ctx, repo.NewMemoryRepository(), handler, nil)
		)
		defer r.Close()

		err := r.Call(ctx, "p1", func(subsystem.Context) error { return errHandler })
		require.ErrorIs(t, err, errHandler)

		err = r.Call(ctx, "p1", func(subsystem.Context) error { panic("boom") })
		require.ErrorContains(t, err, "handler panic")

		require.NoError(t, r.Submit(ctx, subsystem.Message{Type: messagePanic, PlaceID: "p1"}))
		require.NoError(t, r.Submit(ctx, subsystem.Message{Type: messageFail, PlaceID: "p1"}))
		require.NoError(t, r.Load(ctx, "p1"))

		_, handled := handler.snapshot()
		require.Equal(t, []string{messagePanic, messageFail}, handled)
	})
}

// TestRegistry_Rejects checks the argument and lifecycle errors.
func TestRegistry_Rejects(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := t.Context()
		r := subsystem.NewRegistry(ctx, nil, &recordingHandler{}, nil)

		require.ErrorIs(t, r.Submit(ctx, subsystem.Message{Type: "test:One"}), subsystem.ErrMissingPlace)

		r.Close()

		require.ErrorIs(t, r.Submit(ctx, subsystem.Message{Type: "test:One", PlaceID: "p1"}), subsystem.ErrClosed)
	})
}
