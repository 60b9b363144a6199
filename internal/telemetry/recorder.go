// Package telemetry records read-path latency and cache hit/miss counts.
// Recording never fails the caller; backend errors are logged and dropped.
package telemetry

import (
	"context"
	"time"
)

// Recorder collects metrics for one or more requests.
type Recorder interface {
	Latency(name string, d time.Duration)
	Count(name string, n float64)
	// Flush publishes buffered metrics. It never returns an error.
	Flush(ctx context.Context)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Latency(string, time.Duration) {}
func (Nop) Count(string, float64)         {}
func (Nop) Flush(context.Context)         {}

// Since is a convenience for Latency(name, time.Since(start)).
func Since(r Recorder, name string, start time.Time) {
	r.Latency(name, time.Since(start))
}
