// Package counter implements the tally page: a header, a form that picks the
// starting value, and a counter that counts from it.
//
// App owns the chosen count. ConfigureCounter reports a new value through a
// callback, App stores it and re-renders, and Counter re-seeds its running
// count when the value it is handed differs from the previous render.
package counter

import (
	"github.com/ryanhamamura/tally/live"
	"github.com/ryanhamamura/tally/live/h"
)

// Action rate limit of a tally page. Holding Enter on a focused counter
// button repeats at roughly 30 presses per second, and every press must
// count.
const (
	DefaultActionRate  = 50.0
	DefaultActionBurst = 100
)

type appConfig struct {
	logger func(c *live.Context) Logger
}

// AppOption configures App.
type AppOption func(*appConfig)

// WithLogger sends every diagnostic log line to l instead of the page logger.
func WithLogger(l Logger) AppOption {
	return func(cfg *appConfig) {
		if l != nil {
			cfg.logger = func(*live.Context) Logger { return l }
		}
	}
}

// App returns the page init func of the tally page.
func App(opts ...AppOption) func(*live.Context) {
	cfg := appConfig{logger: contextLogger}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *live.Context) {
		log := cfg.logger(c)
		chosenCount := live.NewState(c, 0)

		handleSetCount := func(newCount int) {
			chosenCount.Set(newCount)
		}

		configure := c.Component(ConfigureCounter(handleSetCount, log))
		counter := MountCounter(c, log)

		c.View(func() h.H {
			log("<App /> rendered")
			return h.Div(
				Header(),
				h.Main(
					configure(),
					counter(chosenCount.Get()),
				),
			)
		})
	}
}
