package counter

import "github.com/ryanhamamura/tally/live/h"

// Title is the static page heading.
const Title = "Tally"

// Header renders the static page heading.
func Header() h.H {
	return h.Header(
		h.ID("main-header"),
		h.H1(h.Text(Title)),
		h.P(h.Text("Pick a starting value, then count from there.")),
	)
}
