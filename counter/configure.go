package counter

import (
	"github.com/ryanhamamura/tally/live"
	"github.com/ryanhamamura/tally/live/h"
)

// SessionKeyPending is the session key holding the last submitted content of
// the configuration input.
const SessionKeyPending = "tally.pending"

const countInputID = "count-input"

// ConfigureCounter returns a component init func for the counter
// configuration form.
//
// The input is bound to a browser signal, so the edit buffer changes on every
// keystroke without a server round trip. Submitting the form reads the buffer
// as an integer (anything non-numeric reads as 0) and calls onSet once with
// it. The buffer keeps its content after submission, and is stored in the
// session so a reloaded page starts with the same text in the input.
func ConfigureCounter(onSet func(int), log Logger) func(*live.Context) {
	if log == nil {
		log = nopLogger
	}
	return func(c *live.Context) {
		pending := c.Signal(c.Session().GetString(SessionKeyPending))

		set := c.Action(func() {
			c.Session().Set(SessionKeyPending, pending.String())
			onSet(pending.Int())
		})

		c.View(func() h.H {
			log("<ConfigureCounter /> rendered")
			buffer := pending.String()
			return h.Section(
				h.Class("configure-counter"),
				h.H2(h.Text("Set Counter")),
				h.Form(
					set.OnSubmit(),
					h.Label(h.For(countInputID), h.Text("Initial count")),
					h.Input(
						h.ID(countInputID),
						h.Type("number"),
						h.Attr("step", "1"),
						h.Name("count"),
						h.Placeholder("0"),
						h.If(buffer != "", h.Value(buffer)),
						pending.Bind(),
					),
					h.Button(h.Type("submit"), h.Text("Set")),
				),
			)
		})
	}
}
