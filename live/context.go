package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ryanhamamura/tally/live/h"
)

var errNoView = errors.New("context has no view")

// Context is the living bridge between Go and the browser.
//
// A page Context is created for every page request. It holds runtime state,
// defines actions, manages reactive signals and defines UI through View.
// Components get their own Context that shares the page's action registry,
// signals and SSE stream.
type Context struct {
	id             string
	route          string
	app            *Server
	view           func() h.H
	parentPageCtx  *Context
	patches        *patchQueue
	actionRegistry map[string]actionEntry
	signals        *sync.Map
	mu             sync.RWMutex

	// dispatchMu serializes event handlers of one page.
	dispatchMu sync.Mutex

	ctxDisposedChan chan struct{}
	disposeOnce     sync.Once
	reqCtx          context.Context
	csrfToken       string
	actionLimiter   *rate.Limiter
	sseConnected    atomic.Bool
	createdAt       time.Time

	subsMu        sync.Mutex
	subscriptions []Subscription
}

// ID returns the context ID. Page contexts are registered under it.
func (c *Context) ID() string {
	return c.id
}

// View defines the UI rendered by this context.
//
// Changes to state can be pushed live with Sync().
func (c *Context) View(f func() h.H) {
	if f == nil {
		panic("live: nil view func")
	}
	c.view = func() h.H { return h.Div(h.ID(c.id), f()) }
}

// Render writes the current view of this context to w.
func (c *Context) Render(w io.Writer) error {
	if c.view == nil {
		return errNoView
	}
	return c.view().Render(w)
}

// Component registers a child context with self contained state, actions and
// signals. It returns the component's view func to be placed in the parent's
// view.
//
//	v.Page("/", func(c *live.Context) {
//		greeter := c.Component(greeterFn)
//		c.View(func() h.H {
//			return h.Div(h.H1(h.Text("Hi")), greeter())
//		})
//	})
func (c *Context) Component(initCtx func(c *Context)) func() h.H {
	compCtx := c.newChild()
	initCtx(compCtx)
	return compCtx.view
}

// Mount registers a child context that receives props from its parent on
// every parent render. The returned func stores the props snapshot and renders
// the child; inside the child, props() returns the latest snapshot, or the
// zero value before the first parent render.
//
// Renders of one page are serialized by its dispatch lock, so the snapshot
// needs no locking of its own.
//
//	counter := live.Mount(c, func(cc *live.Context, props func() int) {
//		cc.View(func() h.H { return h.Textf("%d", props()) })
//	})
//	c.View(func() h.H { return counter(chosen.Get()) })
func Mount[P any](parent *Context, initCtx func(c *Context, props func() P)) func(P) h.H {
	compCtx := parent.newChild()
	var current P
	initCtx(compCtx, func() P { return current })
	return func(p P) h.H {
		current = p
		if compCtx.view == nil {
			return nil
		}
		return compCtx.view()
	}
}

func (c *Context) newChild() *Context {
	compCtx := newContext(c.id+"/_component/"+genRandID(), c.route, c.app)
	compCtx.parentPageCtx = c.page()
	return compCtx
}

func (c *Context) isComponent() bool {
	return c.parentPageCtx != nil
}

// page returns the page context that owns this context's stream and registries.
func (c *Context) page() *Context {
	if c.isComponent() {
		return c.parentPageCtx
	}
	return c
}

// dispatch runs fn under the page's dispatch lock.
func (c *Context) dispatch(fn func()) {
	p := c.page()
	p.dispatchMu.Lock()
	defer p.dispatchMu.Unlock()
	fn()
}

// Action registers an event handler and returns a trigger to that event that
// can be added to the view.
//
//	n := 0
//	increment := c.Action(func() {
//		n++
//		c.Sync()
//	})
//
//	c.View(func() h.H {
//		return h.Div(
//			h.P(h.Textf("Value of n: %d", n)),
//			h.Button(h.Text("Increment n"), increment.OnClick()),
//		)
//	})
func (c *Context) Action(f func(), options ...ActionOption) *ActionTrigger {
	id := genRandID()
	if f == nil {
		c.app.logErr(c, "failed to bind action '%s' to context: nil func", id)
		return nil
	}
	entry := actionEntry{fn: f}
	for _, opt := range options {
		if opt != nil {
			opt(&entry)
		}
	}

	p := c.page()
	p.mu.Lock()
	p.actionRegistry[id] = entry
	p.mu.Unlock()
	return &ActionTrigger{id}
}

func (c *Context) getAction(id string) (actionEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.actionRegistry[id]; ok {
		return e, nil
	}
	return actionEntry{}, fmt.Errorf("action '%s' not found", id)
}

// Signal creates a reactive signal and initializes it with the given value.
// Slices and structs are stored as their JSON encoding.
//
//	name := c.Signal("world")
//
//	c.View(func() h.H {
//		return h.Div(
//			h.P(h.Span(h.Text("Hello, ")), name.Text()),
//			h.Input(name.Bind()),
//		)
//	})
//
// Signals live in the browser; their values are injected into the Context
// before each action runs.
func (c *Context) Signal(v any) *Signal {
	sigID := genRandID()
	if v == nil {
		c.app.logErr(c, "failed to bind signal: nil signal value")
		return &Signal{
			id:  sigID,
			val: "error",
			err: fmt.Errorf("context '%s' failed to bind signal '%s': nil signal value", c.id, sigID),
		}
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Struct:
		if j, err := json.Marshal(v); err == nil {
			v = string(j)
		}
	}
	sig := &Signal{
		id:      sigID,
		val:     v,
		changed: true,
	}

	p := c.page()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals.Store(sigID, sig)
	return sig
}

func (c *Context) injectSignals(sigs map[string]any) {
	if sigs == nil {
		c.app.logErr(c, "signal injection failed: nil signals")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for sigID, val := range sigs {
		item, ok := c.signals.Load(sigID)
		if !ok {
			c.signals.Store(sigID, &Signal{id: sigID, val: val})
			continue
		}
		if sig, ok := item.(*Signal); ok {
			sig.val = val
			sig.changed = false
		}
	}
}

// prepareSignalsForPatch collects the signals changed on the server since the
// last patch and clears their changed flag.
func (c *Context) prepareSignalsForPatch() map[string]any {
	p := c.page()
	p.mu.Lock()
	defer p.mu.Unlock()
	updated := make(map[string]any)
	p.signals.Range(func(sigID, value any) bool {
		sig, ok := value.(*Signal)
		if !ok {
			return true
		}
		if sig.err != nil {
			c.app.logWarn(c, "signal '%s' is out of sync: %v", sig.id, sig.err)
			return true
		}
		if sig.changed {
			updated[sigID.(string)] = fmt.Sprintf("%v", sig.val)
			sig.changed = false
		}
		return true
	})
	return updated
}

// sendPatch queues a patch on the page's SSE stream without blocking.
func (c *Context) sendPatch(p patch) {
	c.page().patches.push(p)
}

// Sync pushes the current view and signal changes to the browser over the
// live SSE stream.
func (c *Context) Sync() {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		c.app.logErr(c, "sync view failed: %v", err)
		return
	}
	c.sendPatch(patch{typ: patchTypeElements, key: c.id, content: buf.String()})
	c.SyncSignals()
}

// SyncSignals pushes the current signal changes to the browser.
func (c *Context) SyncSignals() {
	updated := c.prepareSignalsForPatch()
	if len(updated) == 0 {
		return
	}
	c.sendPatch(patch{typ: patchTypeSignals, key: c.page().id, signals: updated})
}

// Publish sends data on subject through the server's PubSub. It is a no-op
// while a page is being registered.
func (c *Context) Publish(subject string, data []byte) error {
	if c.page().id == "" {
		return nil
	}
	if c.app.pubsub == nil {
		return ErrNoPubSub
	}
	return c.app.pubsub.Publish(subject, data)
}

// Subscribe registers handler for subject. The subscription is removed when
// the page context is disposed. Handlers run on the PubSub backend's
// goroutine.
func (c *Context) Subscribe(subject string, handler func(data []byte)) (Subscription, error) {
	p := c.page()
	if p.id == "" {
		return nil, nil
	}
	if c.app.pubsub == nil {
		return nil, ErrNoPubSub
	}
	sub, err := c.app.pubsub.Subscribe(subject, handler)
	if err != nil {
		return nil, err
	}
	p.subsMu.Lock()
	p.subscriptions = append(p.subscriptions, sub)
	p.subsMu.Unlock()
	return sub, nil
}

func (c *Context) unsubscribeAll() {
	c.subsMu.Lock()
	subs := c.subscriptions
	c.subscriptions = nil
	c.subsMu.Unlock()
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			c.app.logWarn(c, "unsubscribe failed: %v", err)
		}
	}
}

// Session returns the session of the request that created this page.
func (c *Context) Session() *Session {
	return &Session{
		ctx:     c.page().reqCtx,
		manager: c.app.sessionManager,
	}
}

// Logger returns the server logger tagged with this context's ID.
func (c *Context) Logger() zerolog.Logger {
	return c.app.logger.With().Str("live-ctx", c.id).Logger()
}

// dispose releases the subscriptions of this context and ends its SSE stream.
func (c *Context) dispose() {
	c.disposeOnce.Do(func() {
		c.unsubscribeAll()
		close(c.ctxDisposedChan)
	})
}

func newContext(id string, route string, s *Server) *Context {
	if s == nil {
		panic("live: create context failed: server is nil")
	}
	return &Context{
		id:              id,
		route:           route,
		app:             s,
		actionRegistry:  make(map[string]actionEntry),
		signals:         new(sync.Map),
		patches:         newPatchQueue(),
		ctxDisposedChan: make(chan struct{}),
		csrfToken:       genCSRFToken(),
		actionLimiter:   newLimiter(s.actionRateLimit, defaultActionRate, defaultActionBurst),
		createdAt:       time.Now(),
	}
}
