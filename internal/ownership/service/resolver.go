package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/internal/metrics"
	"github.com/smallbiznis/travelmate/internal/ownership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// lockStripes bounds the resolver's mutex table. Writers to the same
// (entity, id, field) key always hash to the same stripe, so same-field
// writes serialize while writes to different fields usually proceed in
// parallel.
const lockStripes = 64

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Resolver struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	metrics *metrics.Metrics

	locks [lockStripes]sync.Mutex
}

func New(p Params) domain.Resolver {
	return &Resolver{
		db:      p.DB,
		log:     p.Log.Named("ownership.resolver"),
		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (r *Resolver) Resolve(ctx context.Context, tx *gorm.DB, write domain.FieldWrite) (domain.WriteOutcome, error) {
	if !write.Source.Valid() {
		return domain.WriteOutcome{}, domain.ErrInvalidSource
	}
	if tx == nil {
		tx = r.db
	}

	stripe := &r.locks[stripeFor(write)]
	stripe.Lock()
	defer stripe.Unlock()

	entry, err := r.repo.Find(ctx, tx, write.EntityName, write.EntityID, write.FieldName)
	if err != nil {
		return domain.WriteOutcome{}, err
	}

	if write.Source == domain.SourceOCR && !write.Force {
		if entry != nil && entry.OwnerSource == domain.SourceManual {
			r.log.Debug("ocr write blocked by manual ownership",
				zap.String("entity", write.EntityName),
				zap.String("entity_id", write.EntityID.String()),
				zap.String("field", write.FieldName),
			)
			r.count(write.Source, domain.WriteBlocked)
			return domain.WriteOutcome{
				FieldName: write.FieldName,
				Status:    domain.WriteBlocked,
				Owner:     entry.OwnerSource,
			}, nil
		}
	}

	updated := domain.Entry{
		EntityName:  write.EntityName,
		EntityID:    write.EntityID,
		FieldName:   write.FieldName,
		OwnerSource: write.Source,
		UpdatedAt:   time.Now().UTC(),
	}
	if entry != nil {
		updated.ID = entry.ID
	} else {
		updated.ID = r.genID.Generate()
	}

	if err := r.repo.Upsert(ctx, tx, &updated); err != nil {
		return domain.WriteOutcome{}, err
	}

	r.count(write.Source, domain.WriteApplied)
	return domain.WriteOutcome{
		FieldName: write.FieldName,
		Status:    domain.WriteApplied,
		Owner:     write.Source,
	}, nil
}

func (r *Resolver) Owner(ctx context.Context, entityName string, entityID snowflake.ID, fieldName string) (domain.Source, error) {
	entry, err := r.repo.Find(ctx, r.db, entityName, entityID, fieldName)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", nil
	}
	return entry.OwnerSource, nil
}

func (r *Resolver) count(source domain.Source, status domain.WriteStatus) {
	if r.metrics == nil {
		return
	}
	r.metrics.OwnershipWrites.WithLabelValues(string(source), string(status)).Inc()
}

func stripeFor(write domain.FieldWrite) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(write.EntityName))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(write.EntityID.String()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(write.FieldName))
	return int(h.Sum32() % lockStripes)
}
