package highwater

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidemark-io/tidemark/telemetry"
	"github.com/tidemark-io/tidemark/tracker"
	"go.uber.org/zap"
)

// Agent supervises high-water detection. It owns one background polling loop
// and one health-check timer. The loop polls the detector, classifies each
// answer against the last accepted statistics and publishes progress through
// the tracker. The health check restarts the loop if it terminates with a
// fault.
//
// The loop is the only writer of the last-accepted statistics; the health
// check and CheckNow only read agent state, so a single atomic pointer is
// enough to share it.
type Agent struct {
	detector Detector
	tracker  *tracker.Tracker
	settings Settings
	logger   *zap.Logger

	// pollTimer and healthTimer exist so tests can drive the loop and the
	// supervisor deterministically.
	pollTimer   func(time.Duration) <-chan time.Time
	healthTimer func(time.Duration) <-chan time.Time

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	loopDone   chan struct{}
	healthDone chan struct{}

	currentStats atomic.Pointer[Statistics]
	faulted      atomic.Bool
}

func NewAgent(detector Detector, trk *tracker.Tracker, settings Settings, logger *zap.Logger) *Agent {
	return &Agent{
		detector:    detector,
		tracker:     trk,
		settings:    settings,
		logger:      logger.Named("highwater"),
		pollTimer:   time.After,
		healthTimer: time.After,
	}
}

// Start performs one synchronous detection to seed the agent, publishes a
// Started progress event at that mark and arms the polling loop and the
// health-check supervisor. Starting a running agent is a no-op. ctx bounds
// only the seed detection; the loop runs until Stop.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	seed, err := a.detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("initial high-water detection: %w", err)
	}
	a.currentStats.Store(&seed)
	a.tracker.Publish(tracker.ShardState{
		ShardName: tracker.HighWaterMark,
		Position:  seed.CurrentMark,
		Action:    tracker.ActionStarted,
	})
	telemetry.HighWaterGauge.Set(float64(seed.CurrentMark))
	a.logger.Info("high water agent started", zap.Int64("mark", seed.CurrentMark))

	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.faulted.Store(false)
	a.loopDone = make(chan struct{})
	a.healthDone = make(chan struct{})
	a.running = true
	go a.loop(loopCtx, a.loopDone)
	go a.supervise(loopCtx, a.healthDone)
	return nil
}

// Stop cancels the polling loop and the health check and waits for both to
// finish. Safe to call before Start and safe to call more than once.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	loopDone := a.loopDone
	healthDone := a.healthDone
	a.mu.Unlock()

	cancel()
	<-loopDone
	<-healthDone
	a.tracker.Publish(tracker.ShardState{
		ShardName: tracker.HighWaterMark,
		Position:  a.tracker.HighWater(),
		Action:    tracker.ActionStopped,
	})
	a.logger.Info("high water agent stopped")
}

// IsRunning reports whether the agent has been started and not yet stopped.
// It stays true across loop faults; repeated faults surface through logs and
// the restart counter.
func (a *Agent) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// CheckNow performs one out-of-band detection and publishes its mark through
// the tracker. The tracker's monotonic guard still applies; CheckNow cannot
// move the published mark backwards.
func (a *Agent) CheckNow(ctx context.Context) error {
	stats, err := a.detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("high-water detection: %w", err)
	}
	a.tracker.MarkHighWater(stats.CurrentMark)
	telemetry.HighWaterGauge.Set(float64(a.tracker.HighWater()))
	return nil
}

// Current returns the last accepted statistics.
func (a *Agent) Current() Statistics {
	if s := a.currentStats.Load(); s != nil {
		return *s
	}
	return Statistics{}
}

func (a *Agent) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			a.faulted.Store(true)
			a.logger.Error("polling loop terminated abnormally", zap.Any("panic", r))
		}
	}()
	a.run(ctx)
}

func (a *Agent) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			a.logger.Info("polling loop stopped")
			return
		}

		candidate, err := a.detector.Detect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("polling loop stopped")
				return
			}
			a.logger.Warn("high-water detection failed", zap.Error(err))
			telemetry.DetectorFailures.Inc()
			if !a.wait(ctx, a.settings.SlowPollInterval) {
				a.logger.Info("polling loop stopped")
				return
			}
			continue
		}

		previous := a.Current()
		status := candidate.InterpretStatus(previous)
		telemetry.Polls.With(status.String()).Inc()

		var delay time.Duration
		switch status {
		case Changed:
			a.accept(candidate)
			delay = a.settings.FastPollInterval
		case CaughtUp:
			a.accept(candidate)
			delay = a.settings.SlowPollInterval
		case Stale:
			if previous.SafeHarborTime(a.settings.StaleSequenceThreshold).After(candidate.Timestamp) {
				// The gap has not had its full grace period yet.
				delay = a.settings.SlowPollInterval
				break
			}
			safe, err := a.detector.DetectInSafeZone(ctx)
			if err != nil {
				if ctx.Err() != nil {
					a.logger.Info("polling loop stopped")
					return
				}
				a.logger.Warn("safe zone detection failed", zap.Error(err))
				telemetry.DetectorFailures.Inc()
				delay = a.settings.SlowPollInterval
				break
			}
			a.logger.Info("skipping stale gap",
				zap.Int64("from", previous.CurrentMark),
				zap.Int64("to", safe.CurrentMark),
				zap.Int64("highest-sequence", safe.HighestSequence))
			a.accept(safe)
			delay = a.settings.FastPollInterval
		}

		if !a.wait(ctx, delay) {
			a.logger.Info("polling loop stopped")
			return
		}
	}
}

// accept records stats as the last accepted observation and publishes its
// mark unless it is degenerate: a zero mark means no data has been observed
// yet, and republishing the already-published mark is a no-op downstream.
func (a *Agent) accept(stats Statistics) {
	a.currentStats.Store(&stats)
	if stats.CurrentMark == 0 || stats.CurrentMark == a.tracker.HighWater() {
		return
	}
	a.tracker.MarkHighWater(stats.CurrentMark)
	telemetry.HighWaterGauge.Set(float64(a.tracker.HighWater()))
}

func (a *Agent) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-a.pollTimer(d):
		return true
	}
}

// supervise restarts the polling loop when it terminates abnormally. One
// restart per fault; a fault during the restart itself is logged and
// automatic recovery is switched off to avoid restart storms.
func (a *Agent) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)
	disabled := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.healthTimer(a.settings.HealthCheckInterval):
		}
		if disabled || !a.faulted.Load() || ctx.Err() != nil {
			continue
		}
		a.faulted.Store(false)
		a.logger.Error("polling loop faulted, restarting")
		telemetry.LoopRestarts.Inc()
		if err := a.restartLoop(ctx); err != nil {
			a.logger.Error("polling loop restart failed, automatic recovery disabled", zap.Error(err))
			disabled = true
		}
	}
}

func (a *Agent) restartLoop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running || ctx.Err() != nil {
		return nil
	}

	seed, err := a.detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("reseed high-water detection: %w", err)
	}
	a.currentStats.Store(&seed)
	a.tracker.Publish(tracker.ShardState{
		ShardName: tracker.HighWaterMark,
		Position:  seed.CurrentMark,
		Action:    tracker.ActionStarted,
	})
	a.loopDone = make(chan struct{})
	go a.loop(ctx, a.loopDone)
	return nil
}
