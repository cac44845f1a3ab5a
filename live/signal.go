package live

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ryanhamamura/tally/live/h"
)

// Signal is a value that lives in the browser and is reactive there. The
// server receives the current value of every signal right before an action
// runs.
//
// Use Bind() to connect a signal to an input and Text() to display it
// reactively on an html element.
type Signal struct {
	id      string
	val     any
	changed bool
	err     error
}

// ID returns the signal ID.
func (s *Signal) ID() string {
	return s.id
}

// Err returns a signal error or nil if it contains no error.
func (s *Signal) Err() error {
	return s.err
}

// Bind binds this signal to an input element. The signal follows every edit
// of the input in the browser.
//
//	h.Input(h.Type("number"), sig.Bind())
func (s *Signal) Bind() h.H {
	return h.Data("bind", s.id)
}

// Text renders a span whose text follows the signal value.
func (s *Signal) Text() h.H {
	return h.Span(h.Data("text", "$"+s.id))
}

// SetValue updates the signal value and marks it for the next Sync or
// SyncSignals.
func (s *Signal) SetValue(v any) {
	s.val = v
	s.changed = true
	s.err = nil
}

// String returns the signal value as a string.
func (s *Signal) String() string {
	return fmt.Sprintf("%v", s.val)
}

// Bool reads the signal value as a bool. Returns false on failure.
func (s *Signal) Bool() bool {
	val := strings.ToLower(s.String())
	return val == "true" || val == "1" || val == "yes" || val == "on"
}

// Int reads the signal value as an int, truncating fractional numbers toward
// zero. Returns 0 on failure.
func (s *Signal) Int() int {
	return int(s.Int64())
}

// Int64 reads the signal value as an int64, truncating fractional numbers
// toward zero. Returns 0 on failure.
func (s *Signal) Int64() int64 {
	str := strings.TrimSpace(s.String())
	if n, err := strconv.ParseInt(str, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// Float reads the signal value as a float64. Returns 0.0 on failure.
func (s *Signal) Float() float64 {
	if n, err := strconv.ParseFloat(strings.TrimSpace(s.String()), 64); err == nil {
		return n
	}
	return 0.0
}
