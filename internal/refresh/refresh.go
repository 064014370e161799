// Package refresh drives the periodic data-refresh the admin dashboard
// performs: on a schedule, it publishes on the sync bus so every
// subscribed view re-fetches its slice of server state.
package refresh

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/dinehall/datalayer/internal/syncbus"
	"github.com/dinehall/datalayer/pkg/logger"
)

// Scheduler publishes data-refresh on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	bus  *syncbus.Bus
	log  *logger.Logger
}

// NewScheduler creates a scheduler publishing on bus per spec, e.g.
// "@every 30s".
func NewScheduler(bus *syncbus.Bus, spec string, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewDefault("refresh")
	}

	s := &Scheduler{
		cron: cron.New(),
		bus:  bus,
		log:  log,
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid refresh spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	s.log.Debug("scheduled data refresh")
	s.bus.Publish(syncbus.TopicDataRefresh, nil)
}

// Start begins publishing on the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule; a tick already running completes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
