package calendar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/room-calendar-sync/backend/internal/logging"
	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// Scheduler runs a sync pass at start-up and then on a fixed interval.
// A tick that arrives while a pass is still running is skipped.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	interval    time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entryID cron.EntryID
	started bool
	stopped bool

	// passes tracks passes started outside cron: the start-up pass and
	// manual triggers.
	passes sync.WaitGroup
}

// ErrSchedulerStopped is returned when a pass is requested after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// NewScheduler creates a scheduler for syncService.
func NewScheduler(syncService *SyncService, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval < time.Minute {
		interval = 60 * time.Minute
	}
	cl := logging.CronLogger(logger)

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		syncService: syncService,
		interval:    interval,
		logger:      logger,
	}
}

// Start schedules the repeating pass and kicks off the first one
// immediately. Cancelling ctx stops passes started by the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}
	if s.stopped {
		return ErrSchedulerStopped
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	entryID, err := s.cron.AddFunc(minutesToCronSpec(s.interval), s.Tick)
	if err != nil {
		s.cancel()
		return err
	}
	s.entryID = entryID
	s.started = true

	s.cron.Start()
	s.logger.Info("calendar sync scheduler started", zap.Duration("interval", s.interval))

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		s.Tick()
	}()
	return nil
}

// Stop cancels in-flight passes and waits for every pass the scheduler
// started, scheduled or manual, to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasStarted := s.started
	s.started = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if wasStarted {
		<-s.cron.Stop().Done()
	}
	s.passes.Wait()
	s.logger.Info("calendar sync scheduler stopped")
}

// Tick runs one scheduled pass. It is what the timer invokes and can be
// called directly to drive the scheduler without waiting on wall-clock time.
func (s *Scheduler) Tick() {
	if _, err := s.syncService.Run(s.context()); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.logger.Info("previous sync still running, skipping tick")
			return
		}
		s.logger.Error("sync failed", zap.Error(err))
	}
}

// TriggerSync starts a pass immediately without waiting for it. Stop waits
// for the pass to finish.
func (s *Scheduler) TriggerSync() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.passes.Add(1)
	s.mu.Unlock()

	done, err := s.syncService.Start(ctx)
	if err != nil {
		s.passes.Done()
		return err
	}
	go func() {
		defer s.passes.Done()
		<-done
	}()
	return nil
}

// RunNow performs a pass synchronously.
func (s *Scheduler) RunNow() (models.SyncResult, error) {
	return s.syncService.Run(s.context())
}

// NextRun returns when the next scheduled pass is due, or nil when the
// scheduler is not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if entry.Next.IsZero() {
		return nil
	}
	return &entry.Next
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// minutesToCronSpec converts an interval to a cron spec.
func minutesToCronSpec(interval time.Duration) string {
	if interval < time.Minute {
		interval = 60 * time.Minute
	}
	return "@every " + interval.Truncate(time.Minute).String()
}
