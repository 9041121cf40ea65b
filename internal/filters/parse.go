package filters

import (
	"fmt"
	"net/url"
	"time"
)

// DateLayout is the wire format of date range bounds.
const DateLayout = time.DateOnly

// FromMap builds a state from dimension selections and optional range bounds.
// Unknown keys are rejected so typos do not silently widen a filter.
func FromMap(values map[string]string, start, end string) (State, error) {
	s := NewState()
	for name, value := range values {
		d, ok := ParseDimension(name)
		if !ok {
			return s, fmt.Errorf("unknown filter dimension %q", name)
		}
		var err error
		if s, err = s.With(d, value); err != nil {
			return s, err
		}
	}

	startAt, err := parseBound(start)
	if err != nil {
		return s, fmt.Errorf("invalid start date: %w", err)
	}
	endAt, err := parseBound(end)
	if err != nil {
		return s, fmt.Errorf("invalid end date: %w", err)
	}
	return s.WithRange(startAt, endAt)
}

// FromQuery builds a state from URL query parameters named after the
// dimensions plus "start" and "end". Other parameters are ignored.
func FromQuery(q url.Values) (State, error) {
	values := make(map[string]string)
	for _, d := range Dimensions {
		if v := q.Get(string(d)); v != "" {
			values[string(d)] = v
		}
	}
	return FromMap(values, q.Get("start"), q.Get("end"))
}

func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
