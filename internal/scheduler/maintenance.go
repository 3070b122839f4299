// Package scheduler runs periodic maintenance on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/librarydesk/librarydesk/internal/config"
	"github.com/librarydesk/librarydesk/internal/tasks"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// Enqueuer adds tasks to the background queue.
type Enqueuer interface {
	Enqueue(task backlite.Task) (string, error)
}

// MaintenanceScheduler enqueues the cleanup tasks on a cron schedule. The
// work itself runs on the task workers.
type MaintenanceScheduler struct {
	enqueuer           Enqueuer
	config             config.Maintenance
	auditRetentionDays int

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewMaintenanceScheduler creates a new scheduler instance
func NewMaintenanceScheduler(enqueuer Enqueuer, cfg config.Maintenance, auditRetentionDays int) *MaintenanceScheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultMaintenanceSchedule
	}
	return &MaintenanceScheduler{
		enqueuer:           enqueuer,
		config:             cfg,
		auditRetentionDays: auditRetentionDays,
		cron:               cron.New(cron.WithParser(parser)),
	}
}

// Start begins the scheduler if maintenance is enabled
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.config.Enabled {
		log.Printf("[SCHEDULER] Maintenance disabled")
		return nil
	}

	if err := ValidateSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.config.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunNow(); err != nil {
			log.Printf("[SCHEDULER] Maintenance run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("[SCHEDULER] Maintenance started with schedule '%s'. Next run: %v",
		s.config.Schedule, s.nextRunLocked())

	// Monitor for context cancellation
	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for a running job and stops the scheduler.
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.cron.Remove(s.entryID)
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.isRunning = false

	log.Printf("[SCHEDULER] Maintenance stopped")
}

// RunNow enqueues both cleanup tasks immediately and returns their IDs.
func (s *MaintenanceScheduler) RunNow() ([]string, error) {
	jobs := []backlite.Task{
		tasks.CleanupExpiredVerificationsTask{},
		tasks.CleanupAuditEventsTask{RetentionDays: s.auditRetentionDays},
	}

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		id, err := s.enqueuer.Enqueue(job)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	log.Printf("[SCHEDULER] Enqueued maintenance tasks %v", ids)
	return ids, nil
}

// IsRunning returns whether the scheduler is active
func (s *MaintenanceScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRunTime returns when maintenance runs next, or nil when stopped.
func (s *MaintenanceScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	next := s.nextRunLocked()
	return &next
}

func (s *MaintenanceScheduler) nextRunLocked() time.Time {
	return s.cron.Entry(s.entryID).Next
}
