package counter

import (
	"github.com/ryanhamamura/tally/live"
	"github.com/ryanhamamura/tally/live/h"
)

// Counter is a running count seeded from a value supplied by its parent.
//
// Observe must be called with the parent's value on every render. The running
// count is overwritten only when that value differs from the one observed on
// the previous render; re-rendering with the same value keeps any increments
// and decrements made since.
//
// The zero Counter holds 0 and has observed nothing.
type Counter struct {
	seed  live.Watch[int]
	count int
}

// Observe records the parent's initial count and re-seeds the running count
// when it changed. It reports whether a re-seed happened.
func (c *Counter) Observe(initialCount int) bool {
	if !c.seed.Changed(initialCount) {
		return false
	}
	c.count = initialCount
	return true
}

// Increment adds one to the running count. There is no upper bound.
func (c *Counter) Increment() {
	c.count++
}

// Decrement subtracts one from the running count. The count may go negative.
func (c *Counter) Decrement() {
	c.count--
}

// Reset returns the running count to the last observed initial count.
func (c *Counter) Reset() {
	c.count, _ = c.seed.Last()
}

// Value returns the running count.
func (c *Counter) Value() int {
	return c.count
}

// MountCounter registers a counter component under parent and returns its
// render func. The parent calls it with the current initial count on every
// render of its own.
func MountCounter(parent *live.Context, log Logger) func(initialCount int) h.H {
	if log == nil {
		log = nopLogger
	}
	return live.Mount(parent, func(c *live.Context, initialCount func() int) {
		var counter Counter

		increment := c.Action(func() {
			counter.Increment()
			c.Sync()
		})
		decrement := c.Action(func() {
			counter.Decrement()
			c.Sync()
		})
		reset := c.Action(func() {
			counter.Reset()
			c.Sync()
		})

		c.View(func() h.H {
			counter.Observe(initialCount())
			log("<Counter /> rendered")
			return h.Section(
				h.Class("counter"),
				h.P(h.Text("The initial counter value was "), h.Strong(h.Textf("%d", initialCount()))),
				h.P(h.Class("counter-value"), h.Textf("%d", counter.Value())),
				h.Div(
					h.Button(h.Type("button"), h.Class("decrement"), decrement.OnClick(), h.Text("Decrement")),
					h.Button(h.Type("button"), h.Class("increment"), increment.OnClick(), h.Text("Increment")),
					h.Button(h.Type("button"), h.Class("reset"), reset.OnClick(), h.Text("Reset")),
				),
			)
		})
	})
}
