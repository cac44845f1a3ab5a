package live

import (
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog"
)

func ptr(l zerolog.Level) *zerolog.Level { return &l }

var (
	LogLevelDebug = ptr(zerolog.DebugLevel)
	LogLevelInfo  = ptr(zerolog.InfoLevel)
	LogLevelWarn  = ptr(zerolog.WarnLevel)
	LogLevelError = ptr(zerolog.ErrorLevel)
)

// DefaultDatastarPath is the Datastar bundle the page head references when no
// local copy is configured.
const DefaultDatastarPath = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

// Options defines configuration options for the live server.
// Zero values keep the current setting.
type Options struct {
	// DevMode switches logging to a human readable console writer.
	DevMode bool

	// The http server address. e.g. ':3000'
	ServerAddress string

	// LogLevel sets the minimum log level. nil keeps the default (Info).
	LogLevel *zerolog.Level

	// Logger overrides the default logger entirely. When set, LogLevel and
	// DevMode have no effect on logging.
	Logger *zerolog.Logger

	// The title of the HTML document.
	DocumentTitle string

	// SessionManager replaces the default in-memory scs manager. Configure it
	// (lifetime, cookie settings, store) before passing it.
	SessionManager *scs.SessionManager

	// DatastarContent is the Datastar.js script content. When set it is served
	// by the server at DatastarPath.
	DatastarContent []byte

	// DatastarPath is the script URL referenced by every page. Defaults to
	// DefaultDatastarPath, or "/_datastar.js" when DatastarContent is set.
	DatastarPath string

	// PubSub enables publish/subscribe messaging. Use livenats.New() for an
	// embedded NATS backend, or supply any PubSub implementation.
	PubSub PubSub

	// ContextTTL is how long a page context may wait for its SSE stream
	// before it is reaped. Zero keeps the default (30s), negative disables
	// reaping.
	ContextTTL time.Duration

	// ActionRateLimit sets the per-context token bucket for actions.
	ActionRateLimit RateLimitConfig
}
