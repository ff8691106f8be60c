package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase identifies a state of a machine.
type Phase string

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Machine is a guarded finite-state machine: only registered transitions
// whose condition (if any) holds may be taken.
type Machine struct {
	current     Phase
	transitions map[Phase]map[Phase]func() bool // from -> to -> condition
	onChange    func(from, to Phase)
	mutex       sync.RWMutex
}

func NewMachine(initial Phase) *Machine {
	return &Machine{
		current:     initial,
		transitions: make(map[Phase]map[Phase]func() bool),
	}
}

// AddTransition registers from -> to. A nil condition always allows it.
func (m *Machine) AddTransition(from, to Phase, condition func() bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[Phase]func() bool)
	}
	m.transitions[from][to] = condition
}

// OnChange installs a hook called after every successful transition.
func (m *Machine) OnChange(fn func(from, to Phase)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onChange = fn
}

// Can reports whether the machine could move to the given phase now.
func (m *Machine) Can(to Phase) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.allowed(to)
}

func (m *Machine) allowed(to Phase) bool {
	conditions, exists := m.transitions[m.current]
	if !exists {
		return false
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

// ChangeState moves to the given phase. Staying in the current phase is a
// no-op.
func (m *Machine) ChangeState(to Phase) error {
	m.mutex.Lock()
	from := m.current
	if from == to {
		m.mutex.Unlock()
		return nil
	}
	if !m.allowed(to) {
		m.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	m.current = to
	hook := m.onChange
	m.mutex.Unlock()

	if hook != nil {
		hook(from, to)
	}
	return nil
}

func (m *Machine) Current() Phase {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.current
}
