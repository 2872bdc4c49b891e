package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/george-itf/amazon-listing-helper-sub000/cluster"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// schedulerLockName is the fleet-wide named lock that designates which
// instance processes cron ticks.
const schedulerLockName = "cron-scheduler"

// EnqueueFunc is the callback the scheduler uses to enqueue jobs.
// This breaks the import cycle: the engine provides the implementation.
type EnqueueFunc func(ctx context.Context, t job.Type, payload []byte, opts ...job.Option) (id.JobID, error)

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithEntryLockTTL sets the TTL for per-entry distributed locks.
func WithEntryLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.entryLockTTL = d }
}

// WithSchedulerLockTTL sets the TTL for the fleet-wide scheduler lock.
func WithSchedulerLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.schedLockTTL = d }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for use by engine.RegisterCron.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler runs cron entries on a tick loop. Only the instance holding
// the scheduler lock executes ticks, so entries fire once per due time
// across the whole fleet.
type Scheduler struct {
	cronStore    Store
	clusterStore cluster.Store
	enqueue      EnqueueFunc
	emitter      Emitter
	workerID     id.WorkerID
	logger       *slog.Logger

	tickInterval time.Duration
	entryLockTTL time.Duration
	schedLockTTL time.Duration

	// parsedSchedules caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	cronStore Store,
	clusterStore cluster.Store,
	enqueue EnqueueFunc,
	emitter Emitter,
	workerID id.WorkerID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cronStore:    cronStore,
		clusterStore: clusterStore,
		enqueue:      enqueue,
		emitter:      emitter,
		workerID:     workerID,
		logger:       logger,
		tickInterval: 1 * time.Second,
		entryLockTTL: 30 * time.Second,
		schedLockTTL: 15 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduler-lock and cron tick goroutines.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(2)
	go s.lockLoop()
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for goroutines to finish.
// The scheduler lock is released so another instance can take over
// immediately rather than waiting out the TTL.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	if err := s.clusterStore.ReleaseLock(ctx, schedulerLockName, s.workerID); err != nil {
		s.logger.Warn("release scheduler lock error", slog.String("error", err.Error()))
	}
	s.logger.Info("cron scheduler stopped")
	return nil
}

// lockLoop continuously attempts to acquire or renew the scheduler lock.
func (s *Scheduler) lockLoop() {
	defer s.wg.Done()

	renewInterval := s.schedLockTTL / 2
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	// Try once immediately at start.
	s.tryLock()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tryLock()
		}
	}
}

func (s *Scheduler) tryLock() {
	ctx := context.Background()

	// Try to renew first (cheap if already holding).
	renewed, err := s.clusterStore.RenewLock(ctx, schedulerLockName, s.workerID, s.schedLockTTL)
	if err != nil {
		s.logger.Warn("scheduler lock renew error", slog.String("error", err.Error()))
		return
	}
	if renewed {
		return
	}

	acquired, err := s.clusterStore.AcquireLock(ctx, schedulerLockName, s.workerID, s.schedLockTTL)
	if err != nil {
		s.logger.Warn("scheduler lock acquire error", slog.String("error", err.Error()))
		return
	}
	if acquired {
		s.logger.Info("acquired cron scheduler lock", slog.String("worker_id", s.workerID.String()))
	}
}

// tickLoop fires on each tick interval and processes due cron entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	lock, err := s.clusterStore.GetLock(ctx, schedulerLockName)
	if err != nil {
		s.logger.Warn("get scheduler lock error", slog.String("error", err.Error()))
		return
	}
	if lock == nil || lock.HolderID.String() != s.workerID.String() {
		return // Another instance is driving the schedule.
	}

	entries, err := s.cronStore.ListCrons(ctx)
	if err != nil {
		s.logger.Error("list crons error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		s.fireEntry(ctx, entry, now)
	}
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	// Acquire per-entry lock.
	acquired, err := s.cronStore.AcquireCronLock(ctx, entry.ID, s.workerID, s.entryLockTTL)
	if err != nil {
		s.logger.Error("acquire cron lock error",
			slog.String("cron_id", entry.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another worker got it.
	}

	jobID, enqErr := s.enqueue(ctx, entry.JobType, entry.Payload)
	if enqErr != nil {
		s.logger.Error("cron enqueue error",
			slog.String("cron_name", entry.Name),
			slog.String("job_type", string(entry.JobType)),
			slog.String("error", enqErr.Error()),
		)
		if relErr := s.cronStore.ReleaseCronLock(ctx, entry.ID, s.workerID); relErr != nil {
			s.logger.Error("release cron lock error",
				slog.String("cron_id", entry.ID.String()),
				slog.String("error", relErr.Error()),
			)
		}
		return
	}

	// Record the fire and advance the schedule in one entry update, so
	// the write cannot clobber the LastRunAt it just set.
	entry.LastRunAt = &now
	sched, parseErr := s.getOrParseSchedule(entry.Schedule)
	if parseErr != nil {
		s.logger.Error("parse cron schedule error",
			slog.String("cron_name", entry.Name),
			slog.String("schedule", entry.Schedule),
			slog.String("error", parseErr.Error()),
		)
		// Still record the fire so operators can see the entry ran.
		if updateErr := s.cronStore.UpdateCronLastRun(ctx, entry.ID, now); updateErr != nil {
			s.logger.Error("update cron last run error",
				slog.String("cron_id", entry.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	} else {
		next := sched.Next(now)
		entry.NextRunAt = &next
		if updateErr := s.cronStore.UpdateCronEntry(ctx, entry); updateErr != nil {
			s.logger.Error("update cron entry error",
				slog.String("cron_id", entry.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
	}

	// Release lock.
	if relErr := s.cronStore.ReleaseCronLock(ctx, entry.ID, s.workerID); relErr != nil {
		s.logger.Error("release cron lock error",
			slog.String("cron_id", entry.ID.String()),
			slog.String("error", relErr.Error()),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, entry.Name, jobID)
	}

	s.logger.Info("cron fired",
		slog.String("cron_name", entry.Name),
		slog.String("job_type", string(entry.JobType)),
		slog.String("job_id", jobID.String()),
	)
}

// getOrParseSchedule caches parsed cron expressions.
func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
