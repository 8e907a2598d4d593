package highwater

import "time"

// Status classifies a detection result against the previously accepted one.
type Status int

const (
	// Changed means the mark moved forward since the last accepted detection.
	Changed Status = iota
	// CaughtUp means the detector sees no new contiguous progress. This is
	// the steady state for an idle log.
	CaughtUp
	// Stale means positions exist beyond the current mark but a gap in the
	// sequence keeps them from being contiguously safe.
	Stale
)

func (s Status) String() string {
	switch s {
	case Changed:
		return "changed"
	case CaughtUp:
		return "caught-up"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Statistics is a detector's answer at one point in time. Immutable once
// produced.
type Statistics struct {
	// CurrentMark is the highest position judged safe and contiguous.
	// 0 means no data has been observed yet and is never published as
	// progress.
	CurrentMark int64
	// HighestSequence is the highest position present in the log regardless
	// of contiguity. HighestSequence > CurrentMark means the mark is blocked
	// behind a gap.
	HighestSequence int64
	// Timestamp is the wall-clock time of the detection.
	Timestamp time.Time
}

// SafeHarborTime is the instant at which a gap observed at these statistics
// has exhausted its grace period and may be skipped.
func (s Statistics) SafeHarborTime(staleThreshold time.Duration) time.Time {
	return s.Timestamp.Add(staleThreshold)
}

// InterpretStatus classifies s against the previously accepted statistics.
func (s Statistics) InterpretStatus(previous Statistics) Status {
	switch {
	case s.CurrentMark == previous.CurrentMark && s.HighestSequence > s.CurrentMark:
		return Stale
	case s.CurrentMark > previous.CurrentMark:
		return Changed
	default:
		return CaughtUp
	}
}
