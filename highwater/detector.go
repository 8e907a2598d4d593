package highwater

import (
	"context"
	"time"
)

// Detector computes candidate high-water statistics from the underlying log.
// Implementations must be safe for concurrent use: the agent's polling loop
// and out-of-band CheckNow calls may overlap.
type Detector interface {
	// Detect computes the current contiguous safe high-water mark. The mark
	// may be lower than, equal to, or higher than any previous answer.
	Detect(ctx context.Context) (Statistics, error)

	// DetectInSafeZone computes a mark that deliberately skips past a gap
	// judged permanently stale. The reported mark must itself be fully
	// committed even though it leaves a hole behind.
	DetectInSafeZone(ctx context.Context) (Statistics, error)
}

// Settings control the agent's polling and recovery cadences.
type Settings struct {
	// FastPollInterval is the delay between polls while the mark is moving.
	FastPollInterval time.Duration
	// SlowPollInterval is the delay between polls when there is nothing new,
	// the detector failed, or a gap is still inside its grace period.
	SlowPollInterval time.Duration
	// HealthCheckInterval is the cadence of the supervisor that restarts a
	// faulted polling loop.
	HealthCheckInterval time.Duration
	// StaleSequenceThreshold is how long a gap may block the mark before the
	// agent skips past it.
	StaleSequenceThreshold time.Duration
}

// DefaultSettings match a log with modest write rates.
func DefaultSettings() Settings {
	return Settings{
		FastPollInterval:       250 * time.Millisecond,
		SlowPollInterval:       time.Second,
		HealthCheckInterval:    5 * time.Second,
		StaleSequenceThreshold: 3 * time.Second,
	}
}
