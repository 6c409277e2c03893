package sessions

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Janitor completes inactive sessions on a cron schedule.
type Janitor struct {
	manager *Manager
	maxIdle time.Duration
	cron    *cron.Cron
	entry   cron.EntryID
}

// NewJanitor schedules CleanupInactive(maxIdle) on a cron spec (standard
// five-field syntax, e.g. "*/5 * * * *").
func NewJanitor(manager *Manager, schedule string, maxIdle time.Duration) (*Janitor, error) {
	if maxIdle <= 0 {
		return nil, lserror.Validation("max_idle", "must be positive")
	}
	j := &Janitor{manager: manager, maxIdle: maxIdle, cron: cron.New()}
	entry, err := j.cron.AddFunc(schedule, j.sweep)
	if err != nil {
		return nil, lserror.Validation("schedule", err.Error())
	}
	j.entry = entry
	return j, nil
}

// Start begins the schedule.
func (j *Janitor) Start() { j.cron.Start() }

// Stop ends the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep runs one cleanup pass immediately, outside the schedule.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	return j.manager.CleanupInactive(ctx, j.maxIdle)
}

func (j *Janitor) sweep() {
	if _, err := j.manager.CleanupInactive(context.Background(), j.maxIdle); err != nil {
		log.Printf("[Sessions] janitor sweep failed: %v", err)
	}
}
