package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/travelmate/internal/clock"
	"github.com/smallbiznis/travelmate/internal/metrics"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	"github.com/smallbiznis/travelmate/internal/snapshot/domain"
	"github.com/smallbiznis/travelmate/internal/storage"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"github.com/smallbiznis/travelmate/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       domain.Repository
	Trips      tripdomain.Service
	Validation *validation.Service
	Store      *storage.Store
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       domain.Repository
	trips      tripdomain.Service
	validation *validation.Service
	store      *storage.Store
	metrics    *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("snapshot.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		trips:      p.Trips,
		validation: p.Validation,
		store:      p.Store,
		metrics:    p.Metrics,
	}
}

// payload is the frozen export document. It carries everything needed to
// re-render the export file later without touching live rows.
type payload struct {
	SnapshotID  string                            `json:"snapshot_id"`
	TripID      string                            `json:"trip_id"`
	GeneratedAt string                            `json:"generated_at"`
	Trip        tripdomain.Trip                   `json:"trip"`
	Expenses    []tripdomain.ExpenseItem          `json:"expenses"`
	Receipts    []receiptdomain.Receipt           `json:"receipts"`
	Allowance   *tripdomain.AllowanceCalculation  `json:"allowance,omitempty"`
	Reimburse   *tripdomain.Reimbursement         `json:"reimbursement,omitempty"`
	Validation  validation.Report                 `json:"validation"`
}

// Save validates the trip and, when it is ready for export, freezes its full
// state into an append-only record plus a write-once file. A failing
// validation surfaces as NotReadyError, never as a silent partial export.
func (s *Service) Save(ctx context.Context, tripIDRaw string) (domain.Snapshot, error) {
	tripID, err := snowflake.ParseString(strings.TrimSpace(tripIDRaw))
	if err != nil || tripID == 0 {
		return domain.Snapshot{}, tripdomain.ErrInvalidID
	}

	agg, err := s.trips.LoadAggregate(ctx, tripID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	report, err := s.validation.ValidateAggregate(ctx, agg)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !report.ReadyForExport {
		blockers := make([]string, 0, len(report.Blockers))
		for _, b := range report.Blockers {
			blockers = append(blockers, b.Message)
		}
		return domain.Snapshot{}, &domain.NotReadyError{TripID: tripID, Blockers: blockers}
	}

	id := uuid.New()
	generatedAt := s.clock.Now()

	receipts := make([]receiptdomain.Receipt, 0, len(agg.Receipts))
	for _, receipt := range agg.Receipts {
		receipts = append(receipts, receipt)
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].ID < receipts[j].ID })

	doc := payload{
		SnapshotID:  id.String(),
		TripID:      tripID.String(),
		GeneratedAt: generatedAt.Format("2006-01-02T15:04:05.000000000Z"),
		Trip:        agg.Trip,
		Expenses:    agg.Expenses,
		Receipts:    receipts,
		Allowance:   agg.Allowance,
		Reimburse:   agg.Reimbursement,
		Validation:  report,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return domain.Snapshot{}, err
	}

	filename := generatedAt.Format("20060102T150405.000000000Z") + ".json"
	path, err := s.store.WriteSnapshot(tripID.String(), filename, raw)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snapshot := domain.Snapshot{
		ID:          id,
		TripID:      tripID,
		GeneratedAt: generatedAt,
		FilePath:    path,
		Payload:     datatypes.JSON(raw),
		CreatedAt:   generatedAt,
	}
	if err := s.repo.Insert(ctx, s.db, &snapshot); err != nil {
		// Pruning only touches files referenced by rows, so a file without
		// its row would be orphaned forever.
		if removeErr := s.store.Remove(path); removeErr != nil {
			s.log.Warn("failed to remove snapshot file after insert error",
				zap.String("path", path),
				zap.Error(removeErr),
			)
		}
		return domain.Snapshot{}, err
	}

	if s.metrics != nil {
		s.metrics.SnapshotsCreated.Inc()
	}
	s.log.Info("snapshot saved",
		zap.String("snapshot_id", id.String()),
		zap.String("trip_id", tripID.String()),
		zap.String("path", path),
	)
	return snapshot, nil
}

// Get returns a snapshot and its frozen payload bytes. The payload comes
// from the append-only row, so repeated fetches are byte-identical.
func (s *Service) Get(ctx context.Context, idRaw string) (domain.Snapshot, []byte, error) {
	id, err := uuid.Parse(strings.TrimSpace(idRaw))
	if err != nil {
		return domain.Snapshot{}, nil, tripdomain.ErrInvalidID
	}
	snapshot, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Snapshot{}, nil, err
	}
	if snapshot == nil {
		return domain.Snapshot{}, nil, tripdomain.ErrNotFound
	}
	return *snapshot, []byte(snapshot.Payload), nil
}

// List returns a trip's snapshots ordered by generation time.
func (s *Service) List(ctx context.Context, tripIDRaw string) ([]domain.Snapshot, error) {
	tripID, err := snowflake.ParseString(strings.TrimSpace(tripIDRaw))
	if err != nil || tripID == 0 {
		return nil, tripdomain.ErrInvalidID
	}
	items, err := s.repo.ListByTrip(ctx, s.db, tripID)
	if err != nil {
		return nil, err
	}
	snapshots := make([]domain.Snapshot, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		snapshots = append(snapshots, *item)
	}
	return snapshots, nil
}
