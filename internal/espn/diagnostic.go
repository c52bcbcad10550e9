package espn

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	locationExcerpt = 180
	bodyExcerpt     = 200
)

// Kind classifies why a candidate was skipped.
type Kind int

const (
	KindTransport Kind = iota
	KindRedirect
	KindHTTP
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRedirect:
		return "redirect"
	case KindHTTP:
		return "http"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Diagnostic describes one failed candidate. Only the latest one survives a
// resolution.
type Diagnostic struct {
	Candidate Candidate
	Kind      Kind
	Message   string
	PageTitle string
}

func (d *Diagnostic) Error() string { return d.Message }

func transportDiagnostic(c Candidate, err error) *Diagnostic {
	return &Diagnostic{Candidate: c, Kind: KindTransport, Message: err.Error()}
}

func redirectDiagnostic(c Candidate, status int, location string) *Diagnostic {
	return &Diagnostic{
		Candidate: c,
		Kind:      KindRedirect,
		Message:   fmt.Sprintf("Redirected (%d) to: %s", status, excerpt(location, locationExcerpt)),
	}
}

func httpDiagnostic(c Candidate, status int, body []byte) *Diagnostic {
	return &Diagnostic{
		Candidate: c,
		Kind:      KindHTTP,
		Message:   fmt.Sprintf("HTTP %d: %s", status, excerpt(string(body), bodyExcerpt)),
	}
}

func parseDiagnostic(c Candidate, body []byte) *Diagnostic {
	return &Diagnostic{
		Candidate: c,
		Kind:      KindParse,
		Message:   "Non-JSON body (likely login/HTML): " + excerpt(string(body), bodyExcerpt),
		PageTitle: pageTitle(body),
	}
}

// excerpt keeps the first n characters (not bytes) of s.
func excerpt(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// pageTitle pulls <title> out of an interstitial page so the logs say which
// one ESPN served (login, region block, maintenance).
func pageTitle(body []byte) string {
	if !bytes.Contains(bytes.ToLower(body), []byte("<title")) {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
