// Package live is a small server-driven reactive engine for Go web pages.
//
// State lives in Go. Pages and components render HTML on the server, the
// browser forwards events to actions, and every re-render is streamed back as
// a Datastar patch over SSE.
package live

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/ryanhamamura/tally/live/h"
)

const (
	signalCtxID = "live-ctx"
	signalCSRF  = "live-csrf"

	localDatastarPath = "/_datastar.js"
	defaultContextTTL = 30 * time.Second
)

// Server is the root of a live application.
// It manages page routing, page contexts and the SSE connections that carry
// live updates.
type Server struct {
	cfg                  Options
	mux                  *http.ServeMux
	server               *http.Server
	logger               zerolog.Logger
	contextRegistry      map[string]*Context
	contextRegistryMutex sync.RWMutex
	sessionManager       *scs.SessionManager
	pubsub               PubSub
	actionRateLimit      RateLimitConfig
	datastarPath         string
	datastarContent      []byte
	datastarOnce         sync.Once
	reaperStop           chan struct{}
	shutdownOnce         sync.Once
}

func (s *Server) logEvent(evt *zerolog.Event, c *Context) *zerolog.Event {
	if c != nil && c.id != "" {
		evt = evt.Str(signalCtxID, c.id)
	}
	return evt
}

func (s *Server) logFatal(format string, a ...any) {
	s.logEvent(s.logger.WithLevel(zerolog.FatalLevel), nil).Msgf(format, a...)
}

func (s *Server) logErr(c *Context, format string, a ...any) {
	s.logEvent(s.logger.Error(), c).Msgf(format, a...)
}

func (s *Server) logWarn(c *Context, format string, a ...any) {
	s.logEvent(s.logger.Warn(), c).Msgf(format, a...)
}

func (s *Server) logInfo(c *Context, format string, a ...any) {
	s.logEvent(s.logger.Info(), c).Msgf(format, a...)
}

func (s *Server) logDebug(c *Context, format string, a ...any) {
	s.logEvent(s.logger.Debug(), c).Msgf(format, a...)
}

// newLogger writes JSON lines to w, or human readable console lines in dev
// mode.
func newLogger(w io.Writer, dev bool, level zerolog.Level) zerolog.Logger {
	if dev {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// Config overrides the default configuration with the given options.
func (s *Server) Config(cfg Options) {
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	} else if cfg.LogLevel != nil || cfg.DevMode != s.cfg.DevMode {
		level := s.logger.GetLevel()
		if cfg.LogLevel != nil {
			level = *cfg.LogLevel
		}
		s.logger = newLogger(os.Stderr, cfg.DevMode, level)
	}
	if cfg.DevMode != s.cfg.DevMode {
		s.cfg.DevMode = cfg.DevMode
	}
	if cfg.DocumentTitle != "" {
		s.cfg.DocumentTitle = cfg.DocumentTitle
	}
	if cfg.ServerAddress != "" {
		s.cfg.ServerAddress = cfg.ServerAddress
	}
	if cfg.SessionManager != nil {
		s.sessionManager = cfg.SessionManager
	}
	if cfg.DatastarContent != nil {
		s.datastarContent = cfg.DatastarContent
		if cfg.DatastarPath == "" && s.datastarPath == DefaultDatastarPath {
			s.datastarPath = localDatastarPath
		}
	}
	if cfg.DatastarPath != "" {
		s.datastarPath = cfg.DatastarPath
	}
	if cfg.PubSub != nil {
		s.pubsub = cfg.PubSub
	}
	if cfg.ContextTTL != 0 {
		s.cfg.ContextTTL = cfg.ContextTTL
	}
	if cfg.ActionRateLimit.Rate != 0 || cfg.ActionRateLimit.Burst != 0 {
		s.actionRateLimit = cfg.ActionRateLimit
	}
}

// Page registers a route and its page init func. The init func receives a
// fresh *Context for every page request and defines state, UI, signals and
// actions on it.
//
//	s.Page("/", func(c *live.Context) {
//		c.View(func() h.H {
//			return h.H1(h.Text("Hello, live!"))
//		})
//	})
func (s *Server) Page(route string, initContextFn func(c *Context)) {
	s.ensureDatastarHandler()
	// dry run so an init func that panics fails at registration
	func() {
		defer func() {
			if err := recover(); err != nil {
				s.logFatal("failed to register page with init func that panics: %v", err)
				panic(err)
			}
		}()
		c := newContext("", route, s)
		initContextFn(c)
		if err := c.Render(io.Discard); err != nil {
			panic(err)
		}
		c.dispose()
	}()

	s.mux.HandleFunc("GET "+route, func(w http.ResponseWriter, r *http.Request) {
		s.logDebug(nil, "GET %s", r.URL.String())
		if strings.Contains(r.URL.Path, "favicon") ||
			strings.Contains(r.URL.Path, ".well-known") {
			http.NotFound(w, r)
			return
		}
		id := fmt.Sprintf("%s_/%s", route, uuid.NewString())
		c := newContext(id, route, s)
		c.reqCtx = r.Context()
		initContextFn(c)
		s.registerCtx(c)

		headElements := []h.H{h.Script(h.Type("module"), h.Src(s.datastarPath))}
		headElements = append(headElements,
			h.Meta(h.Data("signals", fmt.Sprintf("{'%s':'%s','%s':'%s'}", signalCtxID, id, signalCSRF, c.csrfToken))),
			h.Meta(h.Data("init", "@get('/_sse')")),
			h.Meta(h.Data("init", fmt.Sprintf(`window.addEventListener('beforeunload', (evt) => {
			navigator.sendBeacon('/_session/close', '%s');});`, c.id))),
		)

		var body h.H
		c.dispatch(func() { body = c.view() })

		doc := h.HTML5(h.HTML5Props{
			Title: s.cfg.DocumentTitle,
			Head:  headElements,
			Body:  []h.H{body},
		})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := doc.Render(w); err != nil {
			s.logErr(c, "render page failed: %v", err)
		}
	})
}

func (s *Server) registerCtx(c *Context) {
	if c == nil {
		s.logErr(nil, "failed to add nil context to registry")
		return
	}
	s.contextRegistryMutex.Lock()
	s.contextRegistry[c.id] = c
	n := len(s.contextRegistry)
	s.contextRegistryMutex.Unlock()
	s.logDebug(c, "new context added to registry")
	s.logDebug(nil, "number of contexts in registry: %d", n)
}

func (s *Server) cleanupCtx(c *Context) {
	c.dispose()
	s.unregisterCtx(c)
}

func (s *Server) unregisterCtx(c *Context) {
	if c.id == "" {
		s.logErr(c, "unregister ctx failed: ctx contains empty id")
		return
	}
	s.contextRegistryMutex.Lock()
	delete(s.contextRegistry, c.id)
	n := len(s.contextRegistry)
	s.contextRegistryMutex.Unlock()
	s.logDebug(c, "ctx removed from registry")
	s.logDebug(nil, "number of contexts in registry: %d", n)
}

func (s *Server) getCtx(id string) (*Context, error) {
	s.contextRegistryMutex.RLock()
	defer s.contextRegistryMutex.RUnlock()
	if c, ok := s.contextRegistry[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("ctx '%s' not found", id)
}

func (s *Server) contextTTL() time.Duration {
	if s.cfg.ContextTTL == 0 {
		return defaultContextTTL
	}
	return s.cfg.ContextTTL
}

func (s *Server) startReaper() {
	ttl := s.contextTTL()
	if ttl < 0 {
		return
	}
	interval := ttl / 3
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	s.reaperStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.reaperStop:
				return
			case <-ticker.C:
				s.reapOrphanedContexts(ttl)
			}
		}
	}()
}

// reapOrphanedContexts disposes page contexts that never opened their SSE
// stream within ttl.
func (s *Server) reapOrphanedContexts(ttl time.Duration) {
	now := time.Now()
	s.contextRegistryMutex.RLock()
	var orphans []*Context
	for _, c := range s.contextRegistry {
		if !c.sseConnected.Load() && now.Sub(c.createdAt) > ttl {
			orphans = append(orphans, c)
		}
	}
	s.contextRegistryMutex.RUnlock()

	for _, c := range orphans {
		s.logInfo(c, "reaping orphaned context (no SSE connection after %s)", ttl)
		s.cleanupCtx(c)
	}
}

// Handler returns the server's HTTP handler, wrapped by the session
// middleware.
func (s *Server) Handler() http.Handler {
	if s.sessionManager == nil {
		return s.mux
	}
	return s.sessionManager.LoadAndSave(s.mux)
}

// Start starts the HTTP server and blocks until a SIGINT or SIGTERM signal is
// received, then performs a graceful shutdown. It returns the listener error
// if the server fails to start.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.ServerAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.startReaper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	s.logInfo(nil, "live started at [%s]", s.cfg.ServerAddress)

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer ossignal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logInfo(nil, "received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			s.shutdown()
			return fmt.Errorf("live: http server: %w", err)
		}
	}

	s.shutdown()
	return nil
}

// Shutdown gracefully shuts down the server and all contexts.
// Safe for programmatic or test use.
func (s *Server) Shutdown() {
	s.shutdown()
}

func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		if s.reaperStop != nil {
			close(s.reaperStop)
		}
		s.logInfo(nil, "draining all contexts")
		s.drainAllContexts()

		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.server.Shutdown(ctx); err != nil {
				s.logErr(nil, "http server shutdown error: %v", err)
			}
		}

		if s.pubsub != nil {
			if err := s.pubsub.Close(); err != nil {
				s.logErr(nil, "pubsub close error: %v", err)
			}
		}

		s.logInfo(nil, "shutdown complete")
	})
}

func (s *Server) drainAllContexts() {
	s.contextRegistryMutex.Lock()
	contexts := make([]*Context, 0, len(s.contextRegistry))
	for _, c := range s.contextRegistry {
		contexts = append(contexts, c)
	}
	s.contextRegistry = make(map[string]*Context)
	s.contextRegistryMutex.Unlock()

	for _, c := range contexts {
		s.logDebug(c, "disposing context")
		c.dispose()
	}
	s.logInfo(nil, "drained %d context(s)", len(contexts))
}

// HTTPServeMux returns the underlying request multiplexer so callers can add
// routes and middleware.
//
// The mux may only be modified during initialization, before Start.
func (s *Server) HTTPServeMux() *http.ServeMux {
	return s.mux
}

func (s *Server) ensureDatastarHandler() {
	s.datastarOnce.Do(func() {
		if s.datastarContent == nil || !strings.HasPrefix(s.datastarPath, "/") {
			return
		}
		s.mux.HandleFunc("GET "+s.datastarPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/javascript")
			_, _ = w.Write(s.datastarContent)
		})
	})
}

// New creates a new *Server with default configuration.
func New() *Server {
	s := &Server{
		mux:             http.NewServeMux(),
		logger:          newLogger(os.Stderr, false, zerolog.InfoLevel),
		contextRegistry: make(map[string]*Context),
		sessionManager:  scs.New(),
		datastarPath:    DefaultDatastarPath,
		cfg: Options{
			ServerAddress: ":3000",
			DocumentTitle: "Tally",
		},
	}

	s.mux.HandleFunc("GET /_sse", s.handleSSE)
	s.mux.HandleFunc("GET /_action/{id}", s.handleAction)
	s.mux.HandleFunc("POST /_session/close", s.handleSessionClose)
	return s
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	var sigs map[string]any
	_ = datastar.ReadSignals(r, &sigs)
	cID, _ := sigs[signalCtxID].(string)

	c, err := s.getCtx(cID)
	if err != nil {
		s.logErr(nil, "sse stream failed to start: %v", err)
		http.Error(w, "unknown context", http.StatusNotFound)
		return
	}
	c.dispatch(func() { c.reqCtx = r.Context() })

	sse := datastar.NewSSE(w, r, datastar.WithCompression(datastar.WithBrotli(datastar.WithBrotliLevel(5))))

	// the event id lets a reconnecting browser be told apart by last-event-id
	_ = sse.Send(datastar.EventTypePatchElements, []string{}, datastar.WithSSEEventId("live"))

	c.sseConnected.Store(true)
	s.logDebug(c, "SSE connection established")

	go c.dispatch(c.Sync)

	for {
		select {
		case <-sse.Context().Done():
			s.logDebug(c, "SSE connection ended")
			s.cleanupCtx(c)
			return
		case <-c.ctxDisposedChan:
			s.logDebug(c, "context disposed, closing SSE")
			return
		case <-c.patches.ready:
			for _, p := range c.patches.drain() {
				s.sendPatch(sse, c, p)
			}
		}
	}
}

func (s *Server) sendPatch(sse *datastar.ServerSentEventGenerator, c *Context, p patch) {
	var err error
	switch p.typ {
	case patchTypeElements:
		err = sse.PatchElements(p.content)
	case patchTypeSignals:
		var out []byte
		out, err = json.Marshal(p.signals)
		if err == nil {
			err = sse.PatchSignals(out)
		}
	}
	// a closed connection is not worth logging
	if err != nil && sse.Context().Err() == nil {
		s.logErr(c, "patch failed: %v", err)
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	actionID := r.PathValue("id")
	var sigs map[string]any
	_ = datastar.ReadSignals(r, &sigs)
	cID, _ := sigs[signalCtxID].(string)
	c, err := s.getCtx(cID)
	if err != nil {
		s.logErr(nil, "action '%s' failed: %v", actionID, err)
		http.Error(w, "unknown context", http.StatusNotFound)
		return
	}
	csrfToken, _ := sigs[signalCSRF].(string)
	if subtle.ConstantTimeCompare([]byte(csrfToken), []byte(c.csrfToken)) != 1 {
		s.logWarn(c, "action '%s' rejected: invalid CSRF token", actionID)
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}
	if c.actionLimiter != nil && !c.actionLimiter.Allow() {
		s.logWarn(c, "action '%s' rate limited", actionID)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	entry, err := c.getAction(actionID)
	if err != nil {
		s.logDebug(c, "action '%s' failed: %v", actionID, err)
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	if entry.limiter != nil && !entry.limiter.Allow() {
		s.logWarn(c, "action '%s' rate limited (per-action)", actionID)
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	c.dispatch(func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.logErr(c, "action '%s' failed: %v", actionID, rec)
			}
		}()
		c.reqCtx = r.Context()
		c.injectSignals(sigs)
		entry.fn()
	})
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logErr(nil, "error reading body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c, err := s.getCtx(string(body))
	if err != nil {
		s.logErr(nil, "failed to handle session close: %v", err)
		return
	}
	s.logDebug(c, "session close event triggered")
	s.cleanupCtx(c)
}

func genRandID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func genCSRFToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
