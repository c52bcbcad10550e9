package espn

import (
	"fmt"
	"strings"
)

const (
	PrimaryHost = "https://fantasy.espn.com"
	// ReadsHost is the read-only mirror ESPN's own web app falls back to.
	ReadsHost = "https://lm-api-reads.fantasy.espn.com"
)

// DefaultFallbackSeasons is most-recent-known-good first.
var DefaultFallbackSeasons = []int{2025, 2024, 2023, 2022}

var DefaultHosts = []string{PrimaryHost, ReadsHost}

// Candidate is one (season, host) pair in trial order.
type Candidate struct {
	Season int
	Host   string
}

func (c Candidate) String() string {
	return fmt.Sprintf("%d@%s", c.Season, c.Host)
}

// Seasons puts the requested season (0 = none) ahead of the fallbacks and
// drops repeats while keeping first-seen order.
func Seasons(requested int, fallbacks []int) []int {
	out := make([]int, 0, len(fallbacks)+1)
	seen := make(map[int]struct{}, len(fallbacks)+1)
	add := func(s int) {
		if s <= 0 {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	add(requested)
	for _, s := range fallbacks {
		add(s)
	}
	return out
}

// Candidates crosses seasons with hosts, season-major. Blank and repeated
// hosts are dropped; an empty host list means DefaultHosts.
func Candidates(seasons []int, hosts []string) []Candidate {
	hs := cleanHosts(hosts)
	if len(hs) == 0 {
		hs = DefaultHosts
	}
	out := make([]Candidate, 0, len(seasons)*len(hs))
	for _, s := range seasons {
		for _, h := range hs {
			out = append(out, Candidate{Season: s, Host: h})
		}
	}
	return out
}

func cleanHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	seen := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// seasonsOf lists the distinct seasons of cands in trial order.
func seasonsOf(cands []Candidate) []int {
	out := make([]int, 0, len(cands))
	seen := make(map[int]struct{}, len(cands))
	for _, c := range cands {
		if _, dup := seen[c.Season]; dup {
			continue
		}
		seen[c.Season] = struct{}{}
		out = append(out, c.Season)
	}
	return out
}
