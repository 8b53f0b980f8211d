package fusion

import (
	"math"
	"testing"
	"time"

	"github.com/kailas-cloud/askdex/internal/domain/query"
)

var now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.DocumentID
	}
	return out
}

func equalIDs(t *testing.T, got []Candidate, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func noBoost() Options {
	return Options{Alpha: 0.5, Now: now}
}

func TestFuse_Empty(t *testing.T) {
	got := Fuse(nil, nil, noBoost())
	if got == nil {
		t.Fatal("expected non-nil slice")
	}
	if len(got) != 0 {
		t.Errorf("expected 0 candidates, got %d", len(got))
	}
}

func TestFuse_AlphaZeroFollowsKeywordOrder(t *testing.T) {
	kw := []Hit{{ID: "k1", Score: 9}, {ID: "k2", Score: 5}, {ID: "k3", Score: 1}}
	vec := []Hit{{ID: "k3", Score: 0.99}, {ID: "v1", Score: 0.5}, {ID: "k1", Score: 0.1}}

	opts := noBoost()
	opts.Alpha = 0
	got := Fuse(kw, vec, opts)

	// k1=1, k2=0.5, k3=0, v1=0; k3 and v1 tie and fall back to id order.
	equalIDs(t, got, "k1", "k2", "k3", "v1")
}

func TestFuse_AlphaOneFollowsVectorOrder(t *testing.T) {
	kw := []Hit{{ID: "k1", Score: 9}, {ID: "k2", Score: 5}}
	vec := []Hit{{ID: "v3", Score: 0.9}, {ID: "k2", Score: 0.7}, {ID: "v1", Score: 0.2}}

	opts := noBoost()
	opts.Alpha = 1
	got := Fuse(kw, vec, opts)

	equalIDs(t, got, "v3", "k2", "k1", "v1")
}

func TestFuse_BlendsNormalizedScores(t *testing.T) {
	kw := []Hit{{ID: "a", Score: 10}, {ID: "b", Score: 0}}
	vec := []Hit{{ID: "b", Score: 0.8}, {ID: "a", Score: 0.4}}

	opts := noBoost()
	opts.Alpha = 0.25
	got := Fuse(kw, vec, opts)

	// a: kw 1, vec 0 -> 0.75; b: kw 0, vec 1 -> 0.25
	equalIDs(t, got, "a", "b")
	if math.Abs(got[0].FusedScore-0.75) > 1e-9 {
		t.Errorf("a fused = %f, want 0.75", got[0].FusedScore)
	}
	if math.Abs(got[1].FusedScore-0.25) > 1e-9 {
		t.Errorf("b fused = %f, want 0.25", got[1].FusedScore)
	}
}

func TestFuse_EqualScoresNormalizeToOne(t *testing.T) {
	kw := []Hit{{ID: "x", Score: 3}, {ID: "y", Score: 3}}
	got := Fuse(kw, nil, Options{Alpha: 0, Now: now})
	for _, c := range got {
		if c.KeywordScore != 1 {
			t.Errorf("%s keyword = %f, want 1", c.DocumentID, c.KeywordScore)
		}
	}
}

func TestFuse_TieBreakByAscendingID(t *testing.T) {
	kw := []Hit{{ID: "doc-c", Score: 1}, {ID: "doc-a", Score: 1}, {ID: "doc-b", Score: 1}}
	got := Fuse(kw, nil, Options{Alpha: 0, Now: now})
	equalIDs(t, got, "doc-a", "doc-b", "doc-c")
}

func TestFuse_DateRangeInclusive(t *testing.T) {
	q1, err := query.NewDateRange(*day(2025, 1, 1), *day(2025, 3, 31))
	if err != nil {
		t.Fatalf("NewDateRange: %v", err)
	}
	lateMar31 := time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC)
	kw := []Hit{
		{ID: "jan1", Score: 5, Date: day(2025, 1, 1)},
		{ID: "mar31", Score: 4, Date: &lateMar31},
		{ID: "apr2", Score: 9, Date: day(2025, 4, 2)},
		{ID: "dec31", Score: 8, Date: day(2024, 12, 31)},
		{ID: "undated", Score: 7},
	}

	opts := Options{Alpha: 0, Now: now, DateRange: &q1}
	got := Fuse(kw, nil, opts)

	equalIDs(t, got, "jan1", "mar31")
}

func TestFuse_OpenEndedRangeStopsAtToday(t *testing.T) {
	r, err := query.NewDateRange(*day(2025, 6, 1), time.Time{})
	if err != nil {
		t.Fatalf("NewDateRange: %v", err)
	}
	kw := []Hit{
		{ID: "june", Score: 2, Date: day(2025, 6, 15)},
		{ID: "today", Score: 1, Date: day(2025, 6, 30)},
		{ID: "future", Score: 3, Date: day(2025, 7, 2)},
	}
	got := Fuse(kw, nil, Options{Alpha: 0, Now: now, DateRange: &r})
	equalIDs(t, got, "june", "today")
}

func TestFuse_RecencyBoostReordersEqualRelevance(t *testing.T) {
	kw := []Hit{
		{ID: "old", Score: 1, Date: day(2024, 6, 30)},
		{ID: "new", Score: 1, Date: day(2025, 6, 29)},
	}
	opts := DefaultOptions()
	opts.Alpha = 0
	opts.Now = now

	got := Fuse(kw, nil, opts)
	equalIDs(t, got, "new", "old")
	if got[1].BoostedScore != 0.5 {
		t.Errorf("old boosted = %f, want floor 0.5", got[1].BoostedScore)
	}
}

func TestFuse_DuplicateHitKeepsBestScore(t *testing.T) {
	kw := []Hit{{ID: "a", Score: 10}, {ID: "b", Score: 5}, {ID: "a", Score: 0}}
	got := Fuse(kw, nil, Options{Alpha: 0, Now: now})
	equalIDs(t, got, "a", "b")
	if got[0].KeywordScore != 1 {
		t.Errorf("a keyword = %f, want 1", got[0].KeywordScore)
	}
}

func TestFuse_CarriesPayload(t *testing.T) {
	kw := []Hit{{ID: "a", Score: 1, Path: "/hr/policy.pdf", Title: "Policy"}}
	vec := []Hit{{ID: "a", Score: 1, Text: "Leave policy text", Date: day(2025, 1, 1)}}
	got := Fuse(kw, vec, noBoost())
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	c := got[0]
	if c.Text != "Leave policy text" || c.Path != "/hr/policy.pdf" || c.Title != "Policy" {
		t.Errorf("payload = %+v", c)
	}
	if c.Date == nil || !c.Date.Equal(*day(2025, 1, 1)) {
		t.Errorf("Date = %v", c.Date)
	}
}

func TestRecencyBoost(t *testing.T) {
	window := 365 * 24 * time.Hour
	tests := []struct {
		name   string
		date   *time.Time
		window time.Duration
		want   float64
	}{
		{"undated", nil, window, 1},
		{"today", &now, window, 1},
		{"future", day(2026, 1, 1), window, 1},
		{"half window", ptr(now.Add(-window / 2)), window, 0.5},
		{"quarter window", ptr(now.Add(-window / 4)), window, 0.75},
		{"beyond window", day(2020, 1, 1), window, 0.5},
		{"disabled", day(2020, 1, 1), 0, 1},
	}
	for _, tc := range tests {
		got := RecencyBoost(tc.date, now, 0.5, tc.window)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: RecencyBoost = %f, want %f", tc.name, got, tc.want)
		}
	}
}

func ptr(t time.Time) *time.Time { return &t }
