package engine

import "time"

// Options represents configuration options for the Engine.
type Options struct {
	SnapshotInterval    time.Duration
	SnapshotOffsetDelta int64

	EventRingDepth    int
	AuditPushTimeout  time.Duration
	SessionEndNs      int64 // wall-clock ns of day boundary; Tick compares against this
}

// DefaultEngineOptions returns the default engine options.
func DefaultEngineOptions() *Options {
	return &Options{
		SnapshotInterval:    30 * time.Second,
		SnapshotOffsetDelta: 1000,
		EventRingDepth:      8192,
		AuditPushTimeout:    5 * time.Second,
	}
}
