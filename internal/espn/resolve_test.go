package espn

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	crerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tyler180/espn-league-backend/internal/logging"
)

const leagueJSON = `{"id":123,"settings":{"name":"Dynasty"},"teams":[{"id":1}],"members":[]}`

// fakeESPN records every hit and lets each test decide the response per season.
type fakeESPN struct {
	mu    sync.Mutex
	hits  []string
	reply func(w http.ResponseWriter, r *http.Request, season string)
}

func (f *fakeESPN) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	season := seasonFromPath(r.URL.Path)
	f.mu.Lock()
	f.hits = append(f.hits, season)
	f.mu.Unlock()
	f.reply(w, r, season)
}

func (f *fakeESPN) seasonsHit() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

func seasonFromPath(p string) string {
	parts := strings.Split(p, "/")
	if len(parts) > 6 {
		return parts[6]
	}
	return ""
}

func newFake(t *testing.T, reply func(w http.ResponseWriter, r *http.Request, season string)) (*fakeESPN, string) {
	t.Helper()
	f := &fakeESPN{reply: reply}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func baseOptions(host string) Options {
	return Options{
		LeagueID:        "123",
		Credentials:     Credentials{SWID: "{ABC}", EspnS2: "s2token"},
		FallbackSeasons: []int{2025, 2024, 2023, 2022},
		Hosts:           []string{host},
		DetectRedirects: true,
	}
}

func TestResolve_FirstSuccessWins(t *testing.T) {
	f, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, season string) {
		if season == "2024" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(leagueJSON))
			return
		}
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	res, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), baseOptions(host))
	require.NoError(t, err)
	assert.Equal(t, 2024, res.Season)
	assert.Equal(t, host, res.Host)
	assert.Equal(t, []string{"2025", "2024"}, f.seasonsHit(), "later candidates must not be attempted")
	assert.Len(t, res.Tried, 2)

	settings, ok := res.Document["settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dynasty", settings["name"])
	assert.Equal(t, json.Number("123"), res.Document["id"])
}

func TestResolve_SendsBrowserHeadersAndViews(t *testing.T) {
	seen := make(chan *http.Request, 1)
	_, host := newFake(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		seen <- r.Clone(context.Background())
		_, _ = w.Write([]byte(leagueJSON))
	})

	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), baseOptions(host))
	require.NoError(t, err)
	got := <-seen

	assert.Equal(t, "/apis/v3/games/ffl/seasons/2025/segments/0/leagues/123", got.URL.Path)
	assert.Equal(t, []string{"mTeam", "mMembers", "mSettings"}, got.URL.Query()["view"])
	assert.Equal(t, "SWID={ABC}; espn_s2=s2token", got.Header.Get("Cookie"))
	assert.Equal(t, headerUA, got.Header.Get("User-Agent"))
	assert.Equal(t, "kona", got.Header.Get("X-Fantasy-Source"))
	assert.Equal(t, "kona-PROD-bundle-web", got.Header.Get("X-Fantasy-Platform"))
	assert.Equal(t, "https://fantasy.espn.com/", got.Header.Get("Referer"))
	assert.Equal(t, "https://fantasy.espn.com", got.Header.Get("Origin"))
	assert.Equal(t, "application/json, text/plain, */*", got.Header.Get("Accept"))
}

func TestResolve_PreflightReusedWhenNotRedirected(t *testing.T) {
	f, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(leagueJSON))
	})

	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), baseOptions(host))
	require.NoError(t, err)
	assert.Equal(t, []string{"2025"}, f.seasonsHit())
}

func TestResolve_RedirectRecordedAndSkipped(t *testing.T) {
	longLoc := "https://registerdisney.go.com/login?" + strings.Repeat("x", 300)
	f, host := newFake(t, func(w http.ResponseWriter, r *http.Request, season string) {
		if season == "2025" {
			http.Redirect(w, r, longLoc, http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(leagueJSON))
	})

	res, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), baseOptions(host))
	require.NoError(t, err)
	assert.Equal(t, 2024, res.Season)
	assert.Equal(t, []string{"2025", "2024"}, f.seasonsHit())
}

func TestResolve_RedirectDiagnostic(t *testing.T) {
	longLoc := "https://registerdisney.go.com/login?" + strings.Repeat("x", 300)
	_, host := newFake(t, func(w http.ResponseWriter, r *http.Request, _ string) {
		w.Header().Set("Location", longLoc)
		w.WriteHeader(http.StatusFound)
	})

	opts := baseOptions(host)
	opts.FallbackSeasons = []int{2025}
	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)

	var ex *ExhaustedError
	require.True(t, crerr.As(err, &ex))
	assert.Equal(t, "Redirected (302) to: "+longLoc[:180], ex.Detail)
	require.NotNil(t, ex.Last)
	assert.Equal(t, KindRedirect, ex.Last.Kind)
}

func TestResolve_HTMLBodyIsParseFailure(t *testing.T) {
	html := "<html><head><title>Log In | ESPN</title></head><body>" + strings.Repeat("y", 400) + "</body></html>"
	_, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	})

	opts := baseOptions(host)
	opts.FallbackSeasons = []int{2024}
	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)

	var ex *ExhaustedError
	require.True(t, crerr.As(err, &ex))
	assert.Equal(t, "Non-JSON body (likely login/HTML): "+html[:200], ex.Detail)
	assert.Equal(t, KindParse, ex.Last.Kind)
	assert.Equal(t, "Log In | ESPN", ex.Last.PageTitle)
}

func TestResolve_FollowedRedirectToLoginPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	opts := baseOptions(srv.URL)
	opts.DetectRedirects = false
	opts.FallbackSeasons = []int{2025}
	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)

	var ex *ExhaustedError
	require.True(t, crerr.As(err, &ex))
	assert.Equal(t, "Non-JSON body (likely login/HTML): <html>login</html>", ex.Detail)
}

func TestResolve_NonObjectJSONIsParseFailure(t *testing.T) {
	_, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(`null`))
	})
	opts := baseOptions(host)
	opts.FallbackSeasons = []int{2025}
	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)

	var ex *ExhaustedError
	require.True(t, crerr.As(err, &ex))
	assert.Equal(t, KindParse, ex.Last.Kind)
}

func TestResolve_ExhaustionKeepsLatestDiagnostic(t *testing.T) {
	_, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, season string) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down for " + season))
	})

	opts := baseOptions(host)
	opts.RequestedSeason = 2023
	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)

	var ex *ExhaustedError
	require.True(t, crerr.As(err, &ex))
	assert.Equal(t, "HTTP 503: down for 2022", ex.Detail)
	assert.Equal(t, []int{2023, 2025, 2024, 2022}, ex.Seasons())
	assert.Len(t, ex.Tried, 4)
	assert.Equal(t, "ESPN fetch failed: HTTP 503: down for 2022", ex.Error())
}

func TestResolve_TransportErrorFallsBackToNextHost(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	f, live := newFake(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(leagueJSON))
	})

	opts := baseOptions(deadURL)
	opts.Hosts = []string{deadURL, live}
	res, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, live, res.Host)
	assert.Equal(t, 2025, res.Season)
	assert.Equal(t, []string{"2025"}, f.seasonsHit())
	assert.Equal(t, []Candidate{{2025, deadURL}, {2025, live}}, res.Tried)
}

func TestResolve_DeadHostReportsTransportDiagnostic(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	opts := baseOptions(deadURL)
	opts.FallbackSeasons = []int{2025}
	_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)

	var ex *ExhaustedError
	require.True(t, crerr.As(err, &ex))
	require.NotNil(t, ex.Last)
	assert.Equal(t, KindTransport, ex.Last.Kind)
	assert.Equal(t, Candidate{Season: 2025, Host: deadURL}, ex.Last.Candidate)
	assert.Contains(t, ex.Detail, "connection refused")
	assert.Equal(t, ex.Last.Message, ex.Detail)
	assert.Equal(t, "ESPN fetch failed: "+ex.Detail, ex.Error())
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestResolve_TracesEachCandidate(t *testing.T) {
	_, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, season string) {
		if season == "2025" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(leagueJSON))
	})

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	var buf bytes.Buffer
	resolver := NewResolver(ResolverConfig{
		Logger:         logging.NewJSONTo(&buf, logging.LevelInfo),
		TracerProvider: tp,
	})

	ctx, parent := tp.Tracer("test").Start(context.Background(), "espn.league.invoke")
	res, err := resolver.Resolve(ctx, baseOptions(host))
	parent.End()
	require.NoError(t, err)
	assert.Equal(t, 2024, res.Season)

	var attempts []sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "espn.league.attempt" {
			attempts = append(attempts, s)
		}
	}
	require.Len(t, attempts, 2)

	failed, ok := spanAttr(attempts[0], "espn.failure")
	require.True(t, ok)
	assert.Equal(t, "http", failed.AsString())
	season, _ := spanAttr(attempts[0], "espn.season")
	assert.EqualValues(t, 2025, season.AsInt64())
	assert.Equal(t, codes.Error, attempts[0].Status().Code)

	_, ok = spanAttr(attempts[1], "espn.failure")
	assert.False(t, ok)
	season, _ = spanAttr(attempts[1], "espn.season")
	assert.EqualValues(t, 2024, season.AsInt64())

	traceID := parent.SpanContext().TraceID()
	for _, s := range attempts {
		assert.Equal(t, traceID, s.SpanContext().TraceID())
		assert.Equal(t, parent.SpanContext().SpanID(), s.Parent().SpanID())
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for i, raw := range lines {
		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		assert.Equal(t, traceID.String(), line["trace_id"])
		assert.Equal(t, attempts[i].SpanContext().SpanID().String(), line["span_id"])
	}
}

func TestResolve_MissingCredentialsMakesNoRequests(t *testing.T) {
	f, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(leagueJSON))
	})

	for _, creds := range []Credentials{{SWID: "x"}, {EspnS2: "y"}, {}} {
		opts := baseOptions(host)
		opts.Credentials = creds
		_, err := NewResolver(ResolverConfig{}).Resolve(context.Background(), opts)
		assert.ErrorIs(t, err, ErrMissingCredentials)
	}
	assert.Empty(t, f.seasonsHit())
}

func TestResolve_Idempotent(t *testing.T) {
	_, host := newFake(t, func(w http.ResponseWriter, _ *http.Request, _ string) {
		_, _ = w.Write([]byte(leagueJSON))
	})
	r := NewResolver(ResolverConfig{})
	a, err := r.Resolve(context.Background(), baseOptions(host))
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), baseOptions(host))
	require.NoError(t, err)
	assert.Equal(t, a.Document, b.Document)
}

func TestExcerpt_CountsCharacters(t *testing.T) {
	assert.Equal(t, "héllo", excerpt("héllo wörld", 5))
	assert.Equal(t, "short", excerpt("short", 200))
	assert.Equal(t, "", excerpt("abc", 0))
}

func TestLeagueURL(t *testing.T) {
	assert.Equal(t,
		"https://fantasy.espn.com/apis/v3/games/ffl/seasons/2024/segments/0/leagues/42?view=mTeam&view=mMembers&view=mSettings",
		LeagueURL("https://fantasy.espn.com/", 2024, "42"))
}
