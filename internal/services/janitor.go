package services

import (
	"time"

	"github.com/condoadmin/backend/pkg/logger"
	"github.com/go-co-op/gocron/v2"
)

// Janitor periodically runs orphan reconciliation for every community
// that has active files. The manual cleanup endpoint stays the primary
// path; the janitor is an opt-in background sweep.
type Janitor struct {
	registry  *FileRegistry
	scheduler gocron.Scheduler
}

func NewJanitor(registry *FileRegistry) (*Janitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Janitor{registry: registry, scheduler: scheduler}, nil
}

func (j *Janitor) Start(interval time.Duration) error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.sweep),
	)
	if err != nil {
		return err
	}

	j.scheduler.Start()
	logger.Info("janitor_started", map[string]interface{}{
		"interval": interval.String(),
	})
	return nil
}

func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *Janitor) sweep() {
	communityIDs, err := j.registry.CommunityIDs()
	if err != nil {
		logger.Error("janitor_list_communities_failed", err, nil)
		return
	}

	for _, communityID := range communityIDs {
		removed, err := j.registry.ReconcileOrphans(communityID)
		if err != nil {
			logger.Error("janitor_reconcile_failed", err, map[string]interface{}{
				"community_id": communityID,
			})
			continue
		}
		if removed > 0 {
			logger.Info("janitor_reconciled", map[string]interface{}{
				"community_id": communityID,
				"removed":      removed,
			})
		}
	}
}
