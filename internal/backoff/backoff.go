// Package backoff maps a job's consecutive failure count to the delay before
// its next attempt.
package backoff

import (
	"fmt"
	"strings"
	"time"
)

// Table is a fixed, ordered list of retry delays. Entry i is the delay applied
// after the (i+1)th consecutive failure. Once the table is exhausted the job
// must stop.
type Table []time.Duration

// DefaultTable returns the production schedule: 5s, 15s, 1m, 5m, 10m.
func DefaultTable() Table {
	return Table{
		5 * time.Second,
		15 * time.Second,
		60 * time.Second,
		300 * time.Second,
		600 * time.Second,
	}
}

// Delay returns the delay for a job that has already been retried
// retryCount times. ok is false when retries are exhausted.
func (t Table) Delay(retryCount int) (time.Duration, bool) {
	if retryCount < 0 || retryCount >= len(t) {
		return 0, false
	}
	return t[retryCount], true
}

// Len is the maximum number of retries.
func (t Table) Len() int { return len(t) }

// Total bounds the time a job can spend waiting on retries.
func (t Table) Total() time.Duration {
	var sum time.Duration
	for _, d := range t {
		sum += d
	}
	return sum
}

func (t Table) String() string {
	parts := make([]string, len(t))
	for i, d := range t {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ParseTable parses a comma separated list of durations such as "5s,15s,1m".
func ParseTable(s string) (Table, error) {
	var out Table
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("parse retry delay %q: %w", p, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("retry delay %q must be positive", p)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("retry schedule %q is empty", s)
	}
	return out, nil
}
