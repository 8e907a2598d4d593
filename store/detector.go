package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/tidemark-io/tidemark/highwater"
	"go.uber.org/zap"
)

// GapDetector computes high-water statistics against the local event store.
// It keeps a floor: the last mark it reported. Detect extends the contiguous
// run upwards from the floor; DetectInSafeZone moves the floor past the first
// gap to the next committed run. The floor only moves forward, so positions
// skipped by a safe-zone detection stay skipped even if the gap fills later.
//
// Safe for concurrent use: the agent's polling loop and out-of-band CheckNow
// calls may detect at the same time.
type GapDetector struct {
	mu     sync.Mutex
	store  *EventStore
	mark   int64
	clock  func() time.Time
	logger *zap.Logger
}

func NewGapDetector(store *EventStore, logger *zap.Logger) *GapDetector {
	return &GapDetector{
		store:  store,
		clock:  time.Now,
		logger: logger.Named("gap-detector"),
	}
}

func (d *GapDetector) Detect(ctx context.Context) (highwater.Statistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	highest, err := d.store.HighestSequence(ctx)
	if err != nil {
		return highwater.Statistics{}, err
	}
	mark, err := d.endOfRun(ctx, d.mark)
	if err != nil {
		return highwater.Statistics{}, err
	}
	d.mark = mark
	return highwater.Statistics{
		CurrentMark:     mark,
		HighestSequence: highest,
		Timestamp:       d.clock(),
	}, nil
}

func (d *GapDetector) DetectInSafeZone(ctx context.Context) (highwater.Statistics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	highest, err := d.store.HighestSequence(ctx)
	if err != nil {
		return highwater.Statistics{}, err
	}

	// First committed position past the gap blocking the floor.
	var next sql.NullInt64
	err = d.store.db.QueryRowContext(ctx,
		`SELECT MIN(seq) FROM events WHERE seq > ?`, d.mark).Scan(&next)
	if err != nil {
		return highwater.Statistics{}, fmt.Errorf("next committed sequence: %w", err)
	}
	if next.Valid {
		mark, err := d.endOfRun(ctx, next.Int64-1)
		if err != nil {
			return highwater.Statistics{}, err
		}
		d.logger.Info("skipped sequence gap",
			zap.Int64("from", d.mark),
			zap.Int64("to", mark))
		d.mark = mark
	}
	return highwater.Statistics{
		CurrentMark:     d.mark,
		HighestSequence: highest,
		Timestamp:       d.clock(),
	}, nil
}

// endOfRun returns the last position of the contiguous run starting at
// floor+1, or floor itself when floor+1 is not committed.
func (d *GapDetector) endOfRun(ctx context.Context, floor int64) (int64, error) {
	var exists bool
	err := d.store.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE seq = ?)`, floor+1).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("probe sequence %d: %w", floor+1, err)
	}
	if !exists {
		return floor, nil
	}

	// Run ends are positions with no successor; the smallest one past the
	// floor closes the run that contains floor+1.
	var end int64
	err = d.store.db.QueryRowContext(ctx, `
		SELECT MIN(e.seq) FROM events e
		WHERE e.seq > ?
		  AND NOT EXISTS (SELECT 1 FROM events n WHERE n.seq = e.seq + 1)`,
		floor).Scan(&end)
	if err != nil {
		return 0, fmt.Errorf("extend contiguous run from %d: %w", floor, err)
	}
	return end, nil
}
