package counter

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanhamamura/tally/live"
	"github.com/ryanhamamura/tally/live/h"
)

var (
	reCSRF      = regexp.MustCompile(`&#39;live-csrf&#39;:&#39;([0-9a-f]+)&#39;`)
	reSubmit    = regexp.MustCompile(`data-on:submit__prevent="@get\(&#39;/_action/([0-9a-f]+)&#39;\)"`)
	reBind      = regexp.MustCompile(`data-bind="([0-9a-f]+)"`)
	reValue     = regexp.MustCompile(`class="counter-value">(-?\d+)</p>`)
	reButtonFor = func(class string) *regexp.Regexp {
		return regexp.MustCompile(`class="` + class + `" data-on:click="@get\(&#39;/_action/([0-9a-f]+)&#39;\)"`)
	}
)

// tallyPage drives one loaded tally page through the server's HTTP handler.
type tallyPage struct {
	s       *live.Server
	ctx     *live.Context
	csrf    string
	body    string
	cookies []*http.Cookie
	// current returns the context created by the latest page request
	current func() *live.Context
	// action and signal ids scraped from the latest page body
	submit, increment, decrement, reset, input string
}

func openTallyPage(t *testing.T, opts live.Options, appOpts ...AppOption) *tallyPage {
	t.Helper()
	s := live.New()
	if opts.LogLevel == nil {
		opts.LogLevel = live.LogLevelError
	}
	s.Config(opts)

	var page *live.Context
	app := App(appOpts...)
	s.Page("/", func(c *live.Context) {
		page = c
		app(c)
	})

	p := &tallyPage{s: s, current: func() *live.Context { return page }}
	p.load(t)
	return p
}

// load requests the page again with the session cookies collected so far.
func (p *tallyPage) load(t *testing.T) {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	for _, ck := range p.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	p.s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	p.keepCookies(w)
	p.body = w.Body.String()

	scrape := func(re *regexp.Regexp) string {
		m := re.FindStringSubmatch(p.body)
		require.Len(t, m, 2, "no match for %s", re)
		return m[1]
	}
	p.ctx = p.current()
	p.csrf = scrape(reCSRF)
	p.submit = scrape(reSubmit)
	p.increment = scrape(reButtonFor("increment"))
	p.decrement = scrape(reButtonFor("decrement"))
	p.reset = scrape(reButtonFor("reset"))
	p.input = scrape(reBind)
}

func (p *tallyPage) keepCookies(w *httptest.ResponseRecorder) {
	for _, ck := range w.Result().Cookies() {
		replaced := false
		for i, old := range p.cookies {
			if old.Name == ck.Name {
				p.cookies[i] = ck
				replaced = true
			}
		}
		if !replaced {
			p.cookies = append(p.cookies, ck)
		}
	}
}

func (p *tallyPage) send(t *testing.T, actionID string, sigs map[string]any) int {
	t.Helper()
	all := map[string]any{"live-ctx": p.ctx.ID(), "live-csrf": p.csrf}
	for k, v := range sigs {
		all[k] = v
	}
	raw, err := json.Marshal(all)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/_action/"+actionID+"?datastar="+url.QueryEscape(string(raw)), nil)
	for _, ck := range p.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	p.s.Handler().ServeHTTP(w, req)
	p.keepCookies(w)
	return w.Code
}

func (p *tallyPage) do(t *testing.T, actionID string, sigs map[string]any) {
	t.Helper()
	require.Equal(t, http.StatusOK, p.send(t, actionID, sigs))
}

// submitInput types v into the configuration input and submits the form.
func (p *tallyPage) submitInput(t *testing.T, v any) {
	t.Helper()
	p.do(t, p.submit, map[string]any{p.input: v})
}

func (p *tallyPage) displayed(t *testing.T) int {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, p.ctx.Render(&buf))
	m := reValue.FindStringSubmatch(buf.String())
	require.Len(t, m, 2)
	n, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return n
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) log(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, message)
}

func (r *logRecorder) count(message string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lines {
		if l == message {
			n++
		}
	}
	return n
}

func TestAppScenario(t *testing.T) {
	p := openTallyPage(t, live.Options{})
	assert.Equal(t, 0, p.displayed(t), "initial load")

	p.submitInput(t, "5")
	assert.Equal(t, 5, p.displayed(t))

	p.do(t, p.increment, nil)
	p.do(t, p.increment, nil)
	assert.Equal(t, 7, p.displayed(t))

	p.submitInput(t, "5")
	assert.Equal(t, 7, p.displayed(t), "re-submitting the same value keeps the running count")

	p.submitInput(t, "2")
	assert.Equal(t, 2, p.displayed(t))
}

func TestAppDisplaysAnySubmittedValue(t *testing.T) {
	p := openTallyPage(t, live.Options{})

	for _, n := range []int{3, -8, 0, 123456, 1} {
		p.submitInput(t, strconv.Itoa(n))
		assert.Equal(t, n, p.displayed(t))
	}
}

func TestAppNonNumericInputSetsZero(t *testing.T) {
	var got []int
	onSet := func(n int) { got = append(got, n) }

	s := live.New()
	s.Config(live.Options{LogLevel: live.LogLevelError})
	var page *live.Context
	s.Page("/", func(c *live.Context) {
		page = c
		configure := c.Component(ConfigureCounter(onSet, nil))
		c.View(configure)
	})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	body := w.Body.String()
	submit := reSubmit.FindStringSubmatch(body)[1]
	input := reBind.FindStringSubmatch(body)[1]
	csrf := reCSRF.FindStringSubmatch(body)[1]
	p := &tallyPage{s: s, ctx: page, csrf: csrf, submit: submit, input: input}

	for _, raw := range []any{"abc", "", "4", float64(9), "2.7", "--1"} {
		p.submitInput(t, raw)
	}

	assert.Equal(t, []int{0, 0, 4, 9, 2, 0}, got)
}

func TestAppNonNumericResetsCounterToZero(t *testing.T) {
	p := openTallyPage(t, live.Options{})
	p.submitInput(t, "6")
	p.do(t, p.decrement, nil)
	assert.Equal(t, 5, p.displayed(t))

	p.submitInput(t, "six")

	assert.Equal(t, 0, p.displayed(t))
}

func TestAppCounterActions(t *testing.T) {
	p := openTallyPage(t, live.Options{})
	p.submitInput(t, "1")

	p.do(t, p.decrement, nil)
	p.do(t, p.decrement, nil)
	p.do(t, p.decrement, nil)
	assert.Equal(t, -2, p.displayed(t), "no lower bound")

	p.do(t, p.reset, nil)
	assert.Equal(t, 1, p.displayed(t))
}

func TestAppLogsRenders(t *testing.T) {
	rec := &logRecorder{}
	p := openTallyPage(t, live.Options{}, WithLogger(rec.log))
	// registration dry run plus the page request
	assert.Equal(t, 2, rec.count("<App /> rendered"))
	assert.Equal(t, 2, rec.count("<Counter /> rendered"))

	p.submitInput(t, "3")
	assert.Equal(t, 3, rec.count("<App /> rendered"))

	// a counter action re-renders the counter alone
	p.do(t, p.increment, nil)
	assert.Equal(t, 3, rec.count("<App /> rendered"))
	assert.Equal(t, 4, rec.count("<Counter /> rendered"))
}

func TestAppHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Header().Render(&buf))

	assert.Contains(t, buf.String(), `<header id="main-header"><h1>`+Title+`</h1>`)
}

type memPubSub struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (m *memPubSub) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msgs == nil {
		m.msgs = make(map[string][][]byte)
	}
	m.msgs[subject] = append(m.msgs[subject], data)
	return nil
}

func (m *memPubSub) Subscribe(string, func([]byte)) (live.Subscription, error) {
	return nil, nil
}

func (m *memPubSub) Close() error { return nil }

func TestAppPublishesRenderEvents(t *testing.T) {
	ps := &memPubSub{}
	p := openTallyPage(t, live.Options{PubSub: ps})

	ps.mu.Lock()
	defer ps.mu.Unlock()
	var events []RenderEvent
	for _, raw := range ps.msgs[SubjectRenders] {
		var evt RenderEvent
		require.NoError(t, json.Unmarshal(raw, &evt))
		events = append(events, evt)
	}
	assert.Contains(t, events, RenderEvent{Context: p.ctx.ID(), Message: "<App /> rendered"})
	assert.Contains(t, events, RenderEvent{Context: p.ctx.ID(), Message: "<Counter /> rendered"})
	for _, evt := range events {
		assert.Equal(t, p.ctx.ID(), evt.Context, "nothing is published during registration")
	}
}

func TestAppWithoutPubSubStillRenders(t *testing.T) {
	p := openTallyPage(t, live.Options{LogLevel: live.LogLevelDebug})

	p.submitInput(t, "4")

	assert.Equal(t, 4, p.displayed(t))
}

func TestAppCountsKeyRepeatBursts(t *testing.T) {
	p := openTallyPage(t, live.Options{ActionRateLimit: live.RateLimitConfig{
		Rate:  DefaultActionRate,
		Burst: DefaultActionBurst,
	}})
	p.submitInput(t, "5")

	// two seconds of a held key at 30 presses per second, sent back to back
	rejected := 0
	for i := 0; i < 60; i++ {
		if p.send(t, p.increment, nil) != http.StatusOK {
			rejected++
		}
	}

	assert.Zero(t, rejected)
	assert.Equal(t, 65, p.displayed(t))
}

func TestAppRestoresInputFromSession(t *testing.T) {
	p := openTallyPage(t, live.Options{})
	assert.NotContains(t, p.body, `value=`, "empty input on first visit")

	p.submitInput(t, "12")
	p.load(t)

	assert.Contains(t, p.body, `id="count-input" type="number" step="1" name="count" placeholder="0" value="12"`)
	assert.Equal(t, 0, p.displayed(t), "chosen count starts over on a new page")

	p.submitInput(t, "12")
	assert.Equal(t, 12, p.displayed(t))
}

func TestConfigureCounterLabelsInput(t *testing.T) {
	s := live.New()
	s.Config(live.Options{LogLevel: live.LogLevelError})
	s.Page("/", func(c *live.Context) {
		configure := c.Component(ConfigureCounter(func(int) {}, nil))
		c.View(func() h.H { return configure() })
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Contains(t, w.Body.String(), `<label for="count-input">Initial count</label>`)
}
