package query

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTextLength is the maximum query length in runes.
const MaxTextLength = 4000

// dayLayout is the wire format for calendar days.
const dayLayout = "2006-01-02"

// DateRange is an inclusive calendar-day interval in UTC.
// A zero Start or End leaves that side open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both bounds to UTC days and checks ordering.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: day(start), End: day(end)}
	if r.Start.IsZero() && r.End.IsZero() {
		return DateRange{}, errors.New("date range needs at least one bound")
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("date range end %s is before start %s",
			r.End.Format(dayLayout), r.Start.Format(dayLayout))
	}
	return r, nil
}

// ParseDateRange parses YYYY-MM-DD bounds; an empty string leaves that side open.
func ParseDateRange(start, end string) (DateRange, error) {
	var s, e time.Time
	var err error
	if start != "" {
		if s, err = time.Parse(dayLayout, start); err != nil {
			return DateRange{}, fmt.Errorf("parse start date %q: %w", start, err)
		}
	}
	if end != "" {
		if e, err = time.Parse(dayLayout, end); err != nil {
			return DateRange{}, fmt.Errorf("parse end date %q: %w", end, err)
		}
	}
	return NewDateRange(s, e)
}

// Contains reports whether t falls inside the range, compared at day granularity.
func (r DateRange) Contains(t time.Time) bool {
	d := day(t)
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}

// Resolve closes an open end at the day of now. A missing End means "until today".
func (r DateRange) Resolve(now time.Time) DateRange {
	if r.End.IsZero() {
		r.End = day(now)
	}
	return r
}

func (r DateRange) String() string {
	start, end := "*", "*"
	if !r.Start.IsZero() {
		start = r.Start.Format(dayLayout)
	}
	if !r.End.IsZero() {
		end = r.End.Format(dayLayout)
	}
	return "[" + start + ", " + end + "]"
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Query is a validated user question.
type Query struct {
	text           string
	conversationID string
	dateRange      *DateRange
}

// New validates and normalizes a query.
func New(text, conversationID string, dateRange *DateRange) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, errors.New("query text is required")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return Query{}, fmt.Errorf("query too long (max %d chars)", MaxTextLength)
	}
	q := Query{text: text, conversationID: strings.TrimSpace(conversationID)}
	if dateRange != nil {
		r := *dateRange
		q.dateRange = &r
	}
	return q, nil
}

// Text returns the question text.
func (q Query) Text() string { return q.text }

// ConversationID returns the conversation identifier, empty when absent.
func (q Query) ConversationID() string { return q.conversationID }

// DateRange returns a copy of the explicit date range, or nil.
func (q Query) DateRange() *DateRange {
	if q.dateRange == nil {
		return nil
	}
	r := *q.dateRange
	return &r
}

// WithConversationID returns a copy bound to the given conversation.
func (q Query) WithConversationID(id string) Query {
	q.conversationID = id
	return q
}
