package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/frostnova/autopushd/internal/config"
	"github.com/frostnova/autopushd/internal/detector"
	"github.com/frostnova/autopushd/internal/publisher"
)

// Publisher is the slice of the publisher the scheduler needs.
type Publisher interface {
	Publish(ctx context.Context, message string) (publisher.Outcome, error)
	State(ctx context.Context) publisher.RepoState
}

// Measurer computes a directory size snapshot. The default is
// detector.Measure; tests substitute fakes.
type Measurer func(root string) (int64, error)

// Status is the point-in-time answer to a status query.
type Status struct {
	publisher.RepoState

	Monitoring      bool      `json:"monitoring"`
	PublishInFlight bool      `json:"publish_in_flight"`
	SnapshotBytes   int64     `json:"snapshot_bytes"`
	BaselineBytes   int64     `json:"baseline_bytes"`
	BaselinePrimed  bool      `json:"baseline_primed"`
	IntervalSeconds int       `json:"interval_seconds"`
	ThresholdKB     int64     `json:"threshold_kb"`
	LastOutcome     string    `json:"last_outcome,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastCycle       time.Time `json:"last_cycle"`
}

// Scheduler drives the measure, trigger, publish loop. It is the sole owner
// of the baseline and the publish-in-flight flag; both are mutated only at
// cycle boundaries under mu.
type Scheduler struct {
	cfg      *config.Config
	pub      Publisher
	measure  Measurer
	notifier Notifier
	logger   *slog.Logger

	mu           sync.Mutex
	running      bool // a publish cycle is in flight
	pending      bool // one queued re-run requested during an active cycle
	monitoring   bool
	baseline     int64
	primed       bool
	lastSnapshot int64
	lastOutcome  string
	lastError    string
	lastCycle    time.Time
}

// New creates a scheduler. notifier may be nil when no event consumers are
// configured.
func New(cfg *config.Config, pub Publisher, notifier Notifier, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		pub:      pub,
		measure:  detector.Measure,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes the monitoring loop until ctx is canceled. The first cycle
// runs immediately to prime the baseline; subsequent cycles run on the
// configured interval. Only repository-initialization failure stops the
// loop with an error — every other failure is logged, notified, and
// retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setMonitoring(true)
	defer s.setMonitoring(false)

	s.RestoreBaseline()

	if err := s.tick(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("monitoring stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				return err
			}
		}
	}
}

// tick runs one cycle unless a publish is already in flight, in which case
// the tick is skipped. Two concurrent git operations against the same work
// tree produce undefined repository state, so skipping is mandatory.
func (s *Scheduler) tick(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		snapshot, baseline := s.lastSnapshot, s.baseline
		s.mu.Unlock()
		s.logger.Warn("tick skipped, publish still in flight")
		s.notify(ctx, newEvent(EventCycleSkipped, snapshot, baseline))
		return nil
	}
	s.running = true
	s.mu.Unlock()

	return s.runCycles(ctx)
}

// TriggerNow runs a cycle immediately, outside the tick schedule. When a
// cycle is already in flight, at most one re-run is queued; further
// concurrent triggers coalesce into it.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.pending = true
		s.mu.Unlock()
		s.logger.Info("publish in flight, queuing pending re-run")
		return
	}
	s.running = true
	s.mu.Unlock()

	if err := s.runCycles(ctx); err != nil {
		// A fatal cycle error cannot stop the Run loop from here;
		// surface it and stop re-running.
		s.logger.Error("triggered cycle failed fatally", "error", err)
	}
}

// runCycles services the cycle plus any single pending re-run queued while
// it was executing. Callers must have set the running flag.
func (s *Scheduler) runCycles(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		if err := s.cycle(ctx); err != nil {
			return err
		}

		s.mu.Lock()
		if !s.pending {
			s.mu.Unlock()
			return nil
		}
		s.pending = false
		s.mu.Unlock()

		s.logger.Info("re-running cycle due to pending trigger")
	}
}

// cycle performs one measure / trigger / publish pass. Callers must hold
// the running flag.
func (s *Scheduler) cycle(ctx context.Context) error {
	snapshot, err := s.measure(s.cfg.Watch.Dir)
	if err != nil {
		s.logger.Error("scan failed", "dir", s.cfg.Watch.Dir, "error", err)
		s.finishCycle("scan-failed", err.Error())
		s.mu.Lock()
		baseline := s.baseline
		s.mu.Unlock()
		ev := newEvent(EventPublishFailure, 0, baseline)
		ev.Detail = err.Error()
		s.notify(ctx, ev)
		return nil
	}

	s.mu.Lock()
	s.lastSnapshot = snapshot
	primed := s.primed
	baseline := s.baseline
	s.mu.Unlock()

	if !primed {
		// First measurement ever: it becomes the baseline and must not
		// trigger a publish against a synthetic zero.
		s.setBaseline(snapshot)
		s.logger.Info("baseline initialized", "bytes", snapshot)
		s.finishCycle("baseline-initialized", "")
		return nil
	}

	if !detector.ShouldTrigger(snapshot, baseline, s.cfg.ThresholdBytes()) {
		s.logger.Debug("delta below threshold",
			"snapshot_bytes", snapshot,
			"baseline_bytes", baseline,
			"threshold_bytes", s.cfg.ThresholdBytes())
		s.finishCycle("no-change", "")
		return nil
	}

	s.logger.Info("change detected, publishing",
		"snapshot_bytes", snapshot,
		"baseline_bytes", baseline)
	s.notify(ctx, newEvent(EventPublishStart, snapshot, baseline))

	outcome, perr := s.pub.Publish(ctx, s.cfg.CommitMessage(time.Now()))

	switch outcome {
	case publisher.OutcomeSuccess, publisher.OutcomeNothingToCommit:
		// Both mean the work tree is reconciled with the last-seen state.
		s.setBaseline(snapshot)
		s.finishCycle(outcome.String(), "")
		s.logger.Info("publish complete", "outcome", outcome.String(), "baseline_bytes", snapshot)
		ev := newEvent(EventPublishSuccess, snapshot, snapshot)
		ev.Outcome = outcome.String()
		s.notify(ctx, ev)

	case publisher.OutcomeFailed:
		// Baseline stays put so the next cycle re-evaluates the same delta.
		s.finishCycle(outcome.String(), perr.Error())
		s.logger.Error("publish failed", "error", perr)
		ev := newEvent(EventPublishFailure, snapshot, baseline)
		ev.Outcome = outcome.String()
		ev.Detail = perr.Error()
		s.notify(ctx, ev)

		if errors.Is(perr, publisher.ErrRepoInit) {
			// Looping forever against a directory that cannot hold a
			// repository helps nobody.
			return perr
		}
	}

	return nil
}

// Status reports the current state. Repository facts are re-read live; the
// snapshot and baseline are the last-known values from the loop.
func (s *Scheduler) Status(ctx context.Context) Status {
	repo := s.pub.State(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		RepoState:       repo,
		Monitoring:      s.monitoring,
		PublishInFlight: s.running,
		SnapshotBytes:   s.lastSnapshot,
		BaselineBytes:   s.baseline,
		BaselinePrimed:  s.primed,
		IntervalSeconds: s.cfg.Watch.IntervalSeconds,
		ThresholdKB:     s.cfg.Watch.ThresholdKB,
		LastOutcome:     s.lastOutcome,
		LastError:       s.lastError,
		LastCycle:       s.lastCycle,
	}
}

// RestoreBaseline loads the persisted baseline when persistence is
// enabled. Run calls it once at startup; the status command uses it to
// report the baseline of a daemon that is not currently running.
func (s *Scheduler) RestoreBaseline() {
	path := s.cfg.StateFilePath()
	if path == "" {
		return
	}

	st, ok := loadState(path)
	if !ok {
		s.logger.Debug("no usable state file, starting unprimed", "path", path)
		return
	}

	s.mu.Lock()
	s.baseline = st.BaselineBytes
	s.primed = true
	s.mu.Unlock()
	s.logger.Info("baseline restored", "bytes", st.BaselineBytes, "updated_at", st.UpdatedAt)
}

// setBaseline records a new baseline and persists it when enabled.
func (s *Scheduler) setBaseline(bytes int64) {
	s.mu.Lock()
	s.baseline = bytes
	s.primed = true
	s.mu.Unlock()

	path := s.cfg.StateFilePath()
	if path == "" {
		return
	}
	st := persistedState{BaselineBytes: bytes, UpdatedAt: time.Now().UTC()}
	if err := saveState(path, st); err != nil {
		s.logger.Warn("failed to persist baseline", "path", path, "error", err)
	}
}

// finishCycle records the bookkeeping for a completed cycle.
func (s *Scheduler) finishCycle(outcome, errDetail string) {
	s.mu.Lock()
	s.lastOutcome = outcome
	s.lastError = errDetail
	s.lastCycle = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Scheduler) setMonitoring(active bool) {
	s.mu.Lock()
	s.monitoring = active
	s.mu.Unlock()
}

// notify delivers an event when a notifier is configured.
func (s *Scheduler) notify(ctx context.Context, e Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, e)
}
