package main

import (
	"strings"
	"time"

	"sales-dashboard/internal/filters"
)

func parseDay(s string) (*time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	t, err := time.Parse(filters.DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
