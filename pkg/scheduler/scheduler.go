// Package scheduler starts workflow runs on their cron schedules.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/toolflow/pkg/eventbus"
	"github.com/dukex/toolflow/pkg/events"
	"github.com/dukex/toolflow/pkg/models"
	"github.com/dukex/toolflow/pkg/services"
	"github.com/robfig/cron/v3"
)

// WorkflowLister lists stored workflows.
type WorkflowLister interface {
	List() []*models.Workflow
}

// WorkflowStarter starts a run of a stored workflow.
type WorkflowStarter interface {
	Start(ctx context.Context, workflowID string) (*services.Run, error)
}

type entry struct {
	id       cron.EntryID
	schedule string
}

// Scheduler keeps one cron entry per workflow that has a schedule.
type Scheduler struct {
	workflows WorkflowLister
	runner    WorkflowStarter
	logger    *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cron    *cron.Cron
	entries map[string]entry
}

func New(workflows WorkflowLister, runner WorkflowStarter, logger *slog.Logger) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	return &Scheduler{
		workflows: workflows,
		runner:    runner,
		logger:    logger,
		ctx:       context.Background(),
		cron:      cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger))),
		entries:   make(map[string]entry),
	}
}

// Start builds the entries from the stored workflows and starts the cron loop.
// Runs started by the scheduler carry ctx values.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "entries", len(s.Entries()))

	return nil
}

// Stop stops the cron loop. Runs already started are not affected.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Sync rebuilds the cron entries from the stored workflows.
func (s *Scheduler) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]string)

	for _, workflow := range s.workflows.List() {
		if workflow.Schedule != "" {
			wanted[workflow.ID] = workflow.Schedule
		}
	}

	for workflowID, current := range s.entries {
		if schedule, ok := wanted[workflowID]; ok && schedule == current.schedule {
			continue
		}

		s.cron.Remove(current.id)
		delete(s.entries, workflowID)
		s.logger.DebugContext(ctx, "Schedule removed", "workflow_id", workflowID)
	}

	for workflowID, schedule := range wanted {
		if _, ok := s.entries[workflowID]; ok {
			continue
		}

		id, err := s.cron.AddFunc(schedule, s.job(workflowID))
		if err != nil {
			s.logger.ErrorContext(ctx, "Invalid workflow schedule", "workflow_id", workflowID, "schedule", schedule, "error", err)

			continue
		}

		s.entries[workflowID] = entry{id: id, schedule: schedule}
		s.logger.DebugContext(ctx, "Schedule added", "workflow_id", workflowID, "schedule", schedule)
	}

	return nil
}

// Entries returns the schedule of every scheduled workflow by workflow id.
func (s *Scheduler) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make(map[string]string, len(s.entries))
	for workflowID, e := range s.entries {
		entries[workflowID] = e.schedule
	}

	return entries
}

// Subscribe keeps the entries in sync with workflow changes published on the bus.
func (s *Scheduler) Subscribe(subscriber eventbus.EventSubscriber) error {
	handler := func(ctx context.Context, _ any) error {
		return s.Sync(ctx)
	}

	if err := subscriber.Handle(events.WorkflowSavedEvent, handler); err != nil {
		return err
	}

	return subscriber.Handle(events.WorkflowRemovedEvent, handler)
}

// Trigger starts a scheduled workflow immediately.
func (s *Scheduler) Trigger(workflowID string) {
	s.job(workflowID)()
}

func (s *Scheduler) job(workflowID string) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		run, err := s.runner.Start(ctx, workflowID)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping scheduled run", "workflow_id", workflowID, "error", err)

			return
		}

		s.logger.InfoContext(ctx, "Scheduled run started", "workflow_id", workflowID, "run_id", run.ID)
	}
}
