package live

import (
	"fmt"
	"strconv"

	"github.com/ryanhamamura/tally/live/h"
)

// ActionTrigger renders the browser-side hooks that call an action.
type ActionTrigger struct {
	id string
}

// ID returns the action ID.
func (a *ActionTrigger) ID() string {
	return a.id
}

// TriggerOption configures the behavior of an action trigger.
type TriggerOption interface {
	apply(*triggerOpts)
}

type triggerOpts struct {
	hasSignal bool
	signalID  string
	value     string
	window    bool
}

type withWindowOpt struct{}

func (o withWindowOpt) apply(opts *triggerOpts) { opts.window = true }

// WithWindow scopes the event listener to the window instead of the element.
func WithWindow() TriggerOption { return withWindowOpt{} }

type withSignalOpt struct {
	signalID string
	value    string
}

func (o withSignalOpt) apply(opts *triggerOpts) {
	opts.hasSignal = true
	opts.signalID = o.signalID
	opts.value = o.value
}

// WithSignal sets a signal value before triggering the action.
func WithSignal(sig *Signal, value string) TriggerOption {
	return withSignalOpt{
		signalID: sig.ID(),
		value:    fmt.Sprintf("'%s'", value),
	}
}

// WithSignalInt sets a signal to an int value before triggering the action.
func WithSignalInt(sig *Signal, value int) TriggerOption {
	return withSignalOpt{
		signalID: sig.ID(),
		value:    strconv.Itoa(value),
	}
}

func buildOnExpr(base string, opts *triggerOpts) string {
	if !opts.hasSignal {
		return base
	}
	return fmt.Sprintf("$%s=%s;%s", opts.signalID, opts.value, base)
}

func applyOptions(options ...TriggerOption) triggerOpts {
	var opts triggerOpts
	for _, opt := range options {
		opt.apply(&opts)
	}
	return opts
}

func actionURL(id string) string {
	return fmt.Sprintf("@get('/_action/%s')", id)
}

// OnClick returns an attribute that triggers the action on click.
func (a *ActionTrigger) OnClick(options ...TriggerOption) h.H {
	opts := applyOptions(options...)
	return h.Data("on:click", buildOnExpr(actionURL(a.id), &opts))
}

// OnSubmit returns an attribute for a form element that triggers the action
// when the form is submitted, either by a submit button or by Enter in one
// of its inputs. The browser's own submission is prevented.
func (a *ActionTrigger) OnSubmit(options ...TriggerOption) h.H {
	opts := applyOptions(options...)
	return h.Data("on:submit__prevent", buildOnExpr(actionURL(a.id), &opts))
}

// OnChange returns an attribute that triggers the action on input change.
func (a *ActionTrigger) OnChange(options ...TriggerOption) h.H {
	opts := applyOptions(options...)
	return h.Data("on:change__debounce.200ms", buildOnExpr(actionURL(a.id), &opts))
}

// OnKeyDown returns an attribute that triggers the action when key is
// pressed. An empty key matches any key.
// See https://developer.mozilla.org/en-US/docs/Web/API/KeyboardEvent/key
func (a *ActionTrigger) OnKeyDown(key string, options ...TriggerOption) h.H {
	opts := applyOptions(options...)
	var condition string
	if key != "" {
		condition = fmt.Sprintf("evt.key==='%s' &&", key)
	}
	attrName := "on:keydown"
	if opts.window {
		attrName = "on:keydown__window"
	}
	return h.Data(attrName, condition+buildOnExpr(actionURL(a.id), &opts))
}
