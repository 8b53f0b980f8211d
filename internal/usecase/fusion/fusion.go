// Package fusion blends keyword and vector retrieval scores.
//
// Each input list is min-max normalized, linearly mixed by alpha, filtered by
// an inclusive date range and scaled by a recency boost. Fuse does no I/O.
package fusion

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/query"
)

// Defaults for Options fields left at zero.
const (
	DefaultAlpha       = 0.5
	DefaultBoostFloor  = 0.5
	DefaultDecayWindow = 365 * 24 * time.Hour
)

// Hit is one ranked match from a keyword or vector index.
type Hit struct {
	ID    string
	Score float64
	Date  *time.Time
	Text  string
	Path  string
	Title string
}

// Candidate is a document after fusion. It lives for a single call.
type Candidate struct {
	DocumentID   string
	KeywordScore float64 // normalized, 0 when absent from the keyword list
	VectorScore  float64 // normalized, 0 when absent from the vector list
	FusedScore   float64
	BoostedScore float64
	Date         *time.Time
	Text         string
	Path         string
	Title        string
}

// Options configure a single Fuse call.
type Options struct {
	// Alpha weights the vector side: fused = alpha*vec + (1-alpha)*kw.
	Alpha float64
	// DateRange, when set, drops candidates dated outside it and undated ones.
	DateRange *query.DateRange
	// Now anchors recency and open-ended ranges. Zero means time.Now().
	Now time.Time
	// BoostFloor is the minimum recency multiplier.
	BoostFloor float64
	// DecayWindow is the age at which the boost reaches BoostFloor. <= 0 disables boosting.
	DecayWindow time.Duration
}

// DefaultOptions returns options with the standard alpha, floor and window.
func DefaultOptions() Options {
	return Options{
		Alpha:       DefaultAlpha,
		BoostFloor:  DefaultBoostFloor,
		DecayWindow: DefaultDecayWindow,
	}
}

// Fuse merges keyword and vector hits into candidates ordered by boosted score
// descending, ties broken by ascending document id. Never returns nil.
func Fuse(keyword, vector []Hit, opts Options) []Candidate {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	alpha := clamp01(opts.Alpha)

	kw := normalize(keyword)
	vec := normalize(vector)

	byID := make(map[string]*Candidate, len(keyword)+len(vector))
	order := make([]string, 0, len(keyword)+len(vector))
	get := func(h Hit) *Candidate {
		if c, ok := byID[h.ID]; ok {
			if c.Date == nil && h.Date != nil {
				c.Date = h.Date
			}
			if c.Text == "" {
				c.Text = h.Text
			}
			return c
		}
		c := &Candidate{DocumentID: h.ID, Date: h.Date, Text: h.Text, Path: h.Path, Title: h.Title}
		byID[h.ID] = c
		order = append(order, h.ID)
		return c
	}

	for i, h := range keyword {
		c := get(h)
		c.KeywordScore = max(c.KeywordScore, kw[i])
	}
	for i, h := range vector {
		c := get(h)
		c.VectorScore = max(c.VectorScore, vec[i])
	}

	var window *query.DateRange
	if opts.DateRange != nil {
		r := opts.DateRange.Resolve(now)
		window = &r
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		if window != nil && (c.Date == nil || !window.Contains(*c.Date)) {
			continue
		}
		c.FusedScore = alpha*c.VectorScore + (1-alpha)*c.KeywordScore
		c.BoostedScore = c.FusedScore * RecencyBoost(c.Date, now, opts.BoostFloor, opts.DecayWindow)
		out = append(out, *c)
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		if a.BoostedScore != b.BoostedScore {
			return cmp.Compare(b.BoostedScore, a.BoostedScore)
		}
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
	return out
}

// RecencyBoost returns max(floor, 1 - age/window). Undated and future items get 1.
func RecencyBoost(date *time.Time, now time.Time, floor float64, window time.Duration) float64 {
	if date == nil || window <= 0 {
		return 1
	}
	age := now.Sub(*date)
	if age <= 0 {
		return 1
	}
	ageDays := age.Hours() / 24
	windowDays := window.Hours() / 24
	return math.Max(clamp01(floor), 1-ageDays/windowDays)
}

// normalize maps scores to [0,1] by min-max. A list of equal scores maps to all 1.
func normalize(hits []Hit) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		lo = min(lo, h.Score)
		hi = max(hi, h.Score)
	}
	span := hi - lo
	for i, h := range hits {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (h.Score - lo) / span
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
