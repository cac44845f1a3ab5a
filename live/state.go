package live

import "sync"

// State is a server-side value cell owned by one Context. Setting it
// re-renders the owning context and pushes the result to the browser.
//
//	count := live.NewState(c, 0)
//	inc := c.Action(func() { count.Update(func(n int) int { return n + 1 }) })
type State[T any] struct {
	mu    sync.RWMutex
	value T
	owner *Context
}

// NewState creates a state cell owned by c.
func NewState[T any](c *Context, initial T) *State[T] {
	if c == nil {
		panic("live: nil context in NewState")
	}
	return &State[T]{value: initial, owner: c}
}

// Get returns the current value.
func (s *State[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the value and syncs the owning context.
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
	s.owner.Sync()
}

// Update applies fn to the current value and sets the result.
func (s *State[T]) Update(fn func(T) T) {
	s.Set(fn(s.Get()))
}

// Watch remembers the last value it observed. Components use it to tell
// whether an incoming prop actually changed between two renders.
//
// The zero Watch has observed nothing.
type Watch[T comparable] struct {
	last T
	seen bool
}

// Changed records v and reports whether it differs from the previously
// observed value. The first observation always reports true.
func (w *Watch[T]) Changed(v T) bool {
	if w.seen && w.last == v {
		return false
	}
	w.last = v
	w.seen = true
	return true
}

// Last returns the last observed value and whether any value was observed.
func (w *Watch[T]) Last() (T, bool) {
	return w.last, w.seen
}
