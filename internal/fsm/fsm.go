// Package fsm is a generic directed-graph state-machine executor.
// States are nullary functions returning either a successor label or
// "" to terminate; the runner loops calling the current state's
// function until termination, routing any uncaught error to a single
// declared error state.
package fsm

import "fmt"

// Label names a state in the graph. The zero value "" always means
// termination; it can never be used as the name of a real state.
type Label string

// Terminate is returned by a State to end the run with no error.
const Terminate Label = ""

// State is one node of the graph: given nothing but its own closed-over
// state, it performs its work and returns the label of its successor,
// or Terminate.
type State func() (Label, error)

// Machine is a declared graph of named states plus the bookkeeping the
// runner needs: where to start and where to go on an uncaught error.
type Machine struct {
	states     map[Label]State
	initial    Label
	errorState Label
	onError    func(from Label, err error)
}

// New builds a Machine. errorState may be Terminate, meaning an
// uncaught state error simply ends the run (after onError, if set).
func New(states map[Label]State, initial Label, errorState Label, onError func(from Label, err error)) (*Machine, error) {
	if _, ok := states[initial]; !ok {
		return nil, fmt.Errorf("fsm: initial state %q not declared", initial)
	}
	if errorState != Terminate {
		if _, ok := states[errorState]; !ok {
			return nil, fmt.Errorf("fsm: error state %q not declared", errorState)
		}
	}
	return &Machine{states: states, initial: initial, errorState: errorState, onError: onError}, nil
}

// Run executes the graph until a state returns Terminate. It returns
// the sequence of labels visited, including the initial state.
//
// Any error returned by a state routes, exactly once, to the declared
// error state; a second error encountered while already running the
// error state terminates the run immediately rather than looping.
func (m *Machine) Run() ([]Label, error) {
	var path []Label
	current := m.initial
	inErrorState := false
	for {
		path = append(path, current)
		state, ok := m.states[current]
		if !ok {
			return path, fmt.Errorf("fsm: state %q not declared", current)
		}
		next, err := state()
		if err != nil {
			if m.onError != nil {
				m.onError(current, err)
			}
			if inErrorState || m.errorState == Terminate {
				return path, err
			}
			current = m.errorState
			inErrorState = true
			continue
		}
		if next == Terminate {
			return path, nil
		}
		current = next
		inErrorState = false
	}
}
