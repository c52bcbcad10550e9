package espn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

const defaultTimeout = 15 * time.Second

// ESPN answers with its HTML shell unless the request looks like it came from
// the fantasy web app, so these values are sent exactly as the browser does.
const (
	headerAccept   = "application/json, text/plain, */*"
	headerReferer  = "https://fantasy.espn.com/"
	headerOrigin   = "https://fantasy.espn.com"
	headerUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	headerSource   = "kona"
	headerPlatform = "kona-PROD-bundle-web"
)

var leagueViews = []string{"mTeam", "mMembers", "mSettings"}

// Credentials are the two ESPN session cookies.
type Credentials struct {
	SWID   string
	EspnS2 string
}

// Complete reports whether both cookies are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.SWID) != "" && strings.TrimSpace(c.EspnS2) != ""
}

func (c Credentials) cookieHeader() string {
	return fmt.Sprintf("SWID=%s; espn_s2=%s", c.SWID, c.EspnS2)
}

// LeagueURL is the league endpoint for one candidate, with the team, member
// and settings views selected.
func LeagueURL(host string, season int, leagueID string) string {
	q := url.Values{"view": leagueViews}
	return fmt.Sprintf("%s/apis/v3/games/ffl/seasons/%d/segments/0/leagues/%s?%s",
		strings.TrimRight(host, "/"), season, url.PathEscape(leagueID), q.Encode())
}

func newLeagueRequest(ctx context.Context, target string, creds Credentials) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, crerr.Wrapf(err, "build request for %s", target)
	}
	req.Header.Set("Cookie", creds.cookieHeader())
	req.Header.Set("Accept", headerAccept)
	req.Header.Set("Referer", headerReferer)
	req.Header.Set("Origin", headerOrigin)
	req.Header.Set("User-Agent", headerUA)
	req.Header.Set("X-Fantasy-Source", headerSource)
	req.Header.Set("X-Fantasy-Platform", headerPlatform)
	return req, nil
}

// httpClients derives the redirect-following client and the pre-flight
// client that hands back 3xx responses untouched.
func httpClients(base *http.Client, timeout time.Duration, tp trace.TracerProvider) (follow, noFollow *http.Client) {
	if base == nil {
		base = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithTracerProvider(tp))}
	}
	f := *base
	if f.Timeout <= 0 {
		f.Timeout = timeout
	}
	if f.Timeout <= 0 {
		f.Timeout = defaultTimeout
	}
	nf := f
	nf.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &f, &nf
}
