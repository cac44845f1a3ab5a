package counter

import "github.com/ryanhamamura/tally/live"

// SubjectRenders is the pub/sub subject that receives a RenderEvent for each
// diagnostic log line when the server has a PubSub configured.
const SubjectRenders = "tally.renders"

// RenderEvent is the published form of a diagnostic log line.
type RenderEvent struct {
	Context string `json:"context"`
	Message string `json:"message"`
}

// Logger is the diagnostic log. Calls are fire-and-forget: nothing is
// returned and nothing depends on them.
type Logger func(message string)

func nopLogger(string) {}

// contextLogger writes message at debug level on the page's logger and
// publishes it on SubjectRenders. Publishing errors, including a missing
// PubSub, are dropped.
func contextLogger(c *live.Context) Logger {
	l := c.Logger()
	return func(message string) {
		l.Debug().Msg(message)
		_ = live.Publish(c, SubjectRenders, RenderEvent{Context: c.ID(), Message: message})
	}
}
