package hotkey

import "sync"

// Remote is a listener driven by explicit Press and Release calls. The control
// socket uses it so compositor key bindings running `voxkey press` and
// `voxkey release` behave like a global grab.
type Remote struct {
	events chan Event

	mu     sync.Mutex
	active bool
}

// NewRemote builds an unregistered remote listener.
func NewRemote() *Remote {
	return &Remote{events: make(chan Event, eventBuffer)}
}

// Register always succeeds; the spec is ignored.
func (r *Remote) Register(Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	return nil
}

func (r *Remote) Unregister() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
}

// Press injects a pressed edge. It reports false when unregistered or when
// the queue is full.
func (r *Remote) Press() bool { return r.inject(Event{Pressed: true}) }

// Release injects a released edge.
func (r *Remote) Release() bool { return r.inject(Event{Pressed: false}) }

func (r *Remote) inject(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	return emit(r.events, ev)
}

func (r *Remote) Events() <-chan Event { return r.events }
