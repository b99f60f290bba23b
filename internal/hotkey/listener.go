package hotkey

import (
	"errors"
	"sync"
)

// Event is one activation edge. Pressed is false for a release.
type Event struct {
	Pressed bool
}

// Listener delivers activation edges for a registered spec. Press and release
// share one channel so their order is preserved.
type Listener interface {
	Register(spec Spec) error
	Unregister()
	Events() <-chan Event
}

const eventBuffer = 16

// emit queues ev without blocking. A full queue drops the edge and reports false.
func emit(ch chan Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// Merged fans several listeners into one. Registration succeeds when at least
// one listener registers; OnError receives each individual failure.
type Merged struct {
	listeners []Listener
	OnError   func(error)

	events chan Event

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// Merge combines listeners.
func Merge(listeners ...Listener) *Merged {
	return &Merged{
		listeners: listeners,
		events:    make(chan Event, eventBuffer),
	}
}

func (m *Merged) Register(spec Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		m.unregisterLocked()
	}

	var (
		errs   []error
		active []Listener
	)
	for _, l := range m.listeners {
		if err := l.Register(spec); err != nil {
			errs = append(errs, err)
			if m.OnError != nil {
				m.OnError(err)
			}
			continue
		}
		active = append(active, l)
	}
	if len(active) == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.stop = make(chan struct{})
	for _, l := range active {
		m.wg.Add(1)
		go m.forward(l, m.stop)
	}
	return nil
}

// forward relays one listener in order, blocking until the consumer takes
// each edge.
func (m *Merged) forward(l Listener, stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		case ev := <-l.Events():
			select {
			case m.events <- ev:
			case <-stop:
				return
			}
		}
	}
}

func (m *Merged) Unregister() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregisterLocked()
}

func (m *Merged) unregisterLocked() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	m.wg.Wait()
	m.stop = nil
	for _, l := range m.listeners {
		l.Unregister()
	}
}

func (m *Merged) Events() <-chan Event { return m.events }
