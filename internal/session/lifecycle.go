package session

import "fmt"

// State is the lifecycle position of a session.
type State string

const (
	StateInitializing State = "initializing"
	StateStreaming    State = "streaming"
	StateFinalizing   State = "finalizing"
	StateClosed       State = "closed"
)

// A failed handshake goes from Initializing straight to Finalizing; no summary
// is produced on that route.
var transitions = map[State][]State{
	StateInitializing: {StateStreaming, StateFinalizing},
	StateStreaming:    {StateFinalizing},
	StateFinalizing:   {StateClosed},
}

// Lifecycle enforces the session state transition table.
type Lifecycle struct {
	state   State
	history []State
}

// NewLifecycle returns a lifecycle in StateInitializing.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateInitializing, history: []State{StateInitializing}}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return l.state
}

// History returns every state entered so far, oldest first.
func (l *Lifecycle) History() []State {
	out := make([]State, len(l.history))
	copy(out, l.history)
	return out
}

// Transition moves to next if the table allows it.
func (l *Lifecycle) Transition(next State) error {
	for _, allowed := range transitions[l.state] {
		if allowed == next {
			l.state = next
			l.history = append(l.history, next)
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", l.state, next)
}
