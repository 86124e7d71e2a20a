// Package retention prunes aged export snapshots and uploaded receipt files
// in the background. The newest snapshot of every trip survives regardless
// of age, so at least one export is always recoverable.
package retention

import (
	"context"
	"time"

	"github.com/smallbiznis/travelmate/internal/clock"
	"github.com/smallbiznis/travelmate/internal/config"
	"github.com/smallbiznis/travelmate/internal/metrics"
	snapshotdomain "github.com/smallbiznis/travelmate/internal/snapshot/domain"
	"github.com/smallbiznis/travelmate/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Config struct {
	PollInterval time.Duration
	RunTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Hour
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	return c
}

type Worker struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	snapshotRepo snapshotdomain.Repository
	store        *storage.Store
	holder       *config.RetentionConfigHolder
	metrics      *metrics.Metrics
	cfg          Config
}

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	SnapshotRepo snapshotdomain.Repository
	Store        *storage.Store
	Holder       *config.RetentionConfigHolder
	Metrics      *metrics.Metrics `optional:"true"`
	Config       Config           `optional:"true"`
}

// NewWorker builds the pruning worker. The retention thresholds come from
// the hot-reloadable policy file, re-read on every run.
func NewWorker(p Params) *Worker {
	return &Worker{
		db:           p.DB,
		log:          p.Log.Named("retention"),
		clock:        p.Clock,
		snapshotRepo: p.SnapshotRepo,
		store:        p.Store,
		holder:       p.Holder,
		metrics:      p.Metrics,
		cfg:          p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("retention run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	policy := w.holder.Current()
	now := w.clock.Now()

	snapshots, err := w.pruneSnapshots(ctx, now.AddDate(0, 0, -policy.SnapshotRetentionDays))
	if err != nil {
		return err
	}
	uploads, err := w.pruneUploads(now.AddDate(0, 0, -policy.UploadRetentionDays))
	if err != nil {
		return err
	}

	if snapshots > 0 || uploads > 0 {
		w.log.Info("retention pass complete",
			zap.Int("snapshots_deleted", snapshots),
			zap.Int("uploads_deleted", uploads),
		)
	}
	return nil
}

// pruneSnapshots deletes aged snapshot rows and their files. The repository
// query already excludes the newest snapshot per trip.
func (w *Worker) pruneSnapshots(ctx context.Context, cutoff time.Time) (int, error) {
	prunable, err := w.snapshotRepo.ListPrunable(ctx, w.db, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, snapshot := range prunable {
		if snapshot == nil {
			continue
		}
		if err := w.store.Remove(snapshot.FilePath); err != nil {
			w.log.Warn("snapshot file removal failed",
				zap.Error(err),
				zap.String("path", snapshot.FilePath),
			)
			continue
		}
		if err := w.snapshotRepo.Delete(ctx, w.db, snapshot.ID); err != nil {
			return deleted, err
		}
		deleted++
		w.count("snapshot")
	}
	return deleted, nil
}

func (w *Worker) pruneUploads(cutoff time.Time) (int, error) {
	paths, err := w.store.PruneUploads(cutoff)
	if err != nil {
		return len(paths), err
	}
	for range paths {
		w.count("upload")
	}
	return len(paths), nil
}

func (w *Worker) count(class string) {
	if w.metrics == nil {
		return
	}
	w.metrics.PruneDeleted.WithLabelValues(class).Inc()
}
