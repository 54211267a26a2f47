package fsm

// State is the behaviour of one named state.
//
// States are stateless: everything they need lives in the Context. Hooks
// may return errors or panic; the machine logs and swallows both.
type State[C Context] interface {
	// Name returns the persisted name of the state.
	Name() string
	// TimeoutKey returns the key of the state's timeout, or "" if it has none.
	TimeoutKey() string
	// OnStarted is called when the host restarts. It restores any pending
	// timeout and returns the state to be in, usually Name().
	OnStarted(c C) (string, error)
	// OnEnter is called after the machine switched to this state. It returns
	// the state to actually be in.
	OnEnter(c C) (string, error)
	// OnExit is called before the machine leaves this state.
	OnExit(c C) error
	// OnTimeout is called when the state's timeout fires and returns the
	// state to move to.
	OnTimeout(c C) (string, error)
}

// Base implements the default hooks. Embed it and override what differs.
type Base[C Context] struct {
	StateName string
	Key       string
}

// Name implements State.
func (b Base[C]) Name() string {
	return b.StateName
}

// TimeoutKey implements State.
func (b Base[C]) TimeoutKey() string {
	return b.Key
}

// OnStarted restores the pending timeout and stays.
func (b Base[C]) OnStarted(c C) (string, error) {
	if b.Key != "" {
		RestoreTimeout(c, b.Key)
	}

	return b.StateName, nil
}

// OnEnter stays.
func (b Base[C]) OnEnter(C) (string, error) {
	return b.StateName, nil
}

// OnExit cancels the state's timeout.
func (b Base[C]) OnExit(c C) error {
	if b.Key != "" {
		CancelTimeout(c, b.Key)
	}

	return nil
}

// OnTimeout stays.
func (b Base[C]) OnTimeout(C) (string, error) {
	return b.StateName, nil
}
