// Package catalog holds the exhibition model and everything that turns
// external catalog data into it: JSON and CSV files, scraped HTML
// listings, and the built-in sample set. Descriptions are chunked
// token-aware before they reach the vector index.
package catalog

import (
	"encoding/json"
	"strings"
	"time"

	muzaerrors "muza/internal/errors"
	"muza/internal/logging"
)

// DateLayout is the wire format for exhibition dates.
const DateLayout = "2006-01-02"

// Date is a day-granular timestamp. The zero value means "open-ended" on
// that side of an exhibition's run.
type Date struct {
	time.Time
}

// NewDate builds a Date pinned to UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a DateLayout string. Empty input is the open-ended
// zero Date, not an error.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Exhibition is one museum exhibition record.
type Exhibition struct {
	ID            string   `json:"id"`
	Museum        string   `json:"museum"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	StartDate     Date     `json:"start_date"`
	EndDate       Date     `json:"end_date"`
	Tags          []string `json:"tags"`
	Accessibility []string `json:"accessibility"`
	Audience      []string `json:"audience"`
	Location      string   `json:"location"`
}

// Validate reports a malformed record: ID and title are required, and a
// closed date window must not end before it starts.
func (e Exhibition) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return &muzaerrors.MalformedCandidateError{ID: e.ID, Reason: "missing id"}
	}
	if strings.TrimSpace(e.Title) == "" {
		return &muzaerrors.MalformedCandidateError{ID: e.ID, Reason: "missing title"}
	}
	if !e.StartDate.IsZero() && !e.EndDate.IsZero() && e.EndDate.Before(e.StartDate.Time) {
		return &muzaerrors.MalformedCandidateError{ID: e.ID, Reason: "end date before start date"}
	}
	return nil
}

// RunsOn reports whether the exhibition is open on the given day, both
// boundary days inclusive. Zero dates are open-ended.
func (e Exhibition) RunsOn(day time.Time) bool {
	d := DateOf(day)
	if !e.StartDate.IsZero() && d.Before(e.StartDate.Time) {
		return false
	}
	if !e.EndDate.IsZero() && d.After(e.EndDate.Time) {
		return false
	}
	return true
}

// Expired reports whether the exhibition already closed before the given
// day. Future exhibitions are not expired.
func (e Exhibition) Expired(day time.Time) bool {
	return !e.EndDate.IsZero() && e.EndDate.Before(DateOf(day).Time)
}

// Active drops exhibitions already closed on now's date, logging each
// skip. Not-yet-opened exhibitions stay in: they become visible as soon
// as their window starts.
func Active(items []Exhibition, now time.Time, log logging.Logger) []Exhibition {
	log = logging.OrNop(log)
	out := make([]Exhibition, 0, len(items))
	for _, e := range items {
		if e.Expired(now) {
			log.Info("skipping expired exhibition %s (%s, ended %s)", e.ID, e.Title, e.EndDate)
			continue
		}
		out = append(out, e)
	}
	return out
}
