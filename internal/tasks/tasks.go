package tasks

import (
	"context"

	"github.com/robfig/cron/v3"

	"pledgedesk/internal/logger"
	"pledgedesk/internal/services"
)

// Task represents a scheduled task that needs to be executed
type Task interface {
	Start()
	Stop()
}

// Manager handles the execution of scheduled maintenance tasks
type Manager struct {
	tasks []Task
	log   *logger.Logger
}

// NewManager creates a new task manager
func NewManager() *Manager {
	return &Manager{
		tasks: make([]Task, 0),
		log:   logger.Get(),
	}
}

// RegisterTask registers a task with the manager
func (m *Manager) RegisterTask(task Task) {
	m.tasks = append(m.tasks, task)
}

// StartScheduledTasks starts all registered tasks
func (m *Manager) StartScheduledTasks() {
	for _, task := range m.tasks {
		task.Start()
	}
	m.log.Info("started all scheduled tasks")
}

// StopAllTasks stops all running tasks
func (m *Manager) StopAllTasks() {
	for _, task := range m.tasks {
		task.Stop()
	}
	m.log.Info("stopped all scheduled tasks")
}

// RollupRecountTask recomputes the derived pledge counters of every
// non-terminal session overnight, repairing any drift left by failed
// writes during the day.
type RollupRecountTask struct {
	sessionService services.SessionService
	cron           *cron.Cron
	log            *logger.Logger
}

// NewRollupRecountTask creates the nightly rollup recount task
func NewRollupRecountTask(sessionService services.SessionService) *RollupRecountTask {
	return &RollupRecountTask{
		sessionService: sessionService,
		cron:           cron.New(),
		log:            logger.Get(),
	}
}

// Start schedules the nightly recount
func (t *RollupRecountTask) Start() {
	if _, err := t.cron.AddFunc("30 2 * * *", t.recount); err != nil {
		t.log.WithError(err).Error("failed to schedule rollup recount")
		return
	}
	t.cron.Start()
	t.log.Info("rollup recount task scheduled")
}

// Stop terminates the recount schedule
func (t *RollupRecountTask) Stop() {
	t.cron.Stop()
}

func (t *RollupRecountTask) recount() {
	t.log.Info("running scheduled rollup recount")
	if err := t.sessionService.RecomputeAllRollups(context.Background()); err != nil {
		t.log.WithError(err).Error("rollup recount failed")
		return
	}
	t.log.Info("rollup recount completed")
}
