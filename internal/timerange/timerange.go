// Package timerange implements the optional [start, end) datetime filter
// shared by both pipelines. Start is inclusive and end is exclusive.
package timerange

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/moznion/go-optional"
)

// ErrEmptyRange is returned when start is not before end.
var ErrEmptyRange = errors.New("timerange: start must be before end")

var layouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Range bounds timestamps to [Start, End). A missing bound is unbounded.
type Range struct {
	Start optional.Option[time.Time]
	End   optional.Option[time.Time]
}

// All is the unbounded range.
func All() Range {
	return Range{Start: optional.None[time.Time](), End: optional.None[time.Time]()}
}

// New builds a range from optional bounds and validates it.
func New(start, end optional.Option[time.Time]) (Range, error) {
	r := Range{Start: start, End: end}
	if start.IsSome() && end.IsSome() && !start.Unwrap().Before(end.Unwrap()) {
		return Range{}, ErrEmptyRange
	}
	return r, nil
}

// Parse builds a range from user-supplied strings; empty strings leave the
// corresponding bound open.
func Parse(start, end string) (Range, error) {
	s, err := parseBound(start)
	if err != nil {
		return Range{}, fmt.Errorf("invalid start %q: %w", start, err)
	}
	e, err := parseBound(end)
	if err != nil {
		return Range{}, fmt.Errorf("invalid end %q: %w", end, err)
	}
	return New(s, e)
}

// ParseTime parses a datetime in any of the accepted layouts as UTC.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("expected YYYY-MM-DD[ HH:MM[:SS]] or RFC3339")
}

func parseBound(v string) (optional.Option[time.Time], error) {
	if strings.TrimSpace(v) == "" {
		return optional.None[time.Time](), nil
	}
	t, err := ParseTime(v)
	if err != nil {
		return optional.None[time.Time](), err
	}
	return optional.Some(t), nil
}

// Contains reports whether t lies in [Start, End).
func (r Range) Contains(t time.Time) bool {
	if r.Start.IsSome() && t.Before(r.Start.Unwrap()) {
		return false
	}
	if r.End.IsSome() && !t.Before(r.End.Unwrap()) {
		return false
	}
	return true
}

// Bounded reports whether either bound is set.
func (r Range) Bounded() bool {
	return r.Start.IsSome() || r.End.IsSome()
}

// String renders the range for logs.
func (r Range) String() string {
	start, end := "-inf", "+inf"
	if r.Start.IsSome() {
		start = r.Start.Unwrap().Format(time.RFC3339)
	}
	if r.End.IsSome() {
		end = r.End.Unwrap().Format(time.RFC3339)
	}
	return "[" + start + ", " + end + ")"
}
