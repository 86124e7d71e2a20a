package validation

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/internal/config"
	"github.com/smallbiznis/travelmate/internal/fingerprint"
	"github.com/smallbiznis/travelmate/internal/metrics"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Trips       tripdomain.Service
	ReceiptRepo receiptdomain.Repository
	Retention   *config.RetentionConfigHolder
	Metrics     *metrics.Metrics `optional:"true"`
}

// Service loads a trip aggregate and runs the pure validator over it,
// widening the duplicate candidate set when the configured scope is global.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	trips       tripdomain.Service
	receiptRepo receiptdomain.Repository
	retention   *config.RetentionConfigHolder
	metrics     *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("validation.service"),
		trips:       p.Trips,
		receiptRepo: p.ReceiptRepo,
		retention:   p.Retention,
		metrics:     p.Metrics,
	}
}

// ValidateTrip loads the aggregate and produces the validation report.
func (s *Service) ValidateTrip(ctx context.Context, tripID string) (Report, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(tripID))
	if err != nil || id == 0 {
		return Report{}, tripdomain.ErrInvalidID
	}
	return s.ValidateTripID(ctx, id)
}

// ValidateTripID is the snowflake-typed entry point used by the snapshot
// store.
func (s *Service) ValidateTripID(ctx context.Context, tripID snowflake.ID) (Report, error) {
	agg, err := s.trips.LoadAggregate(ctx, tripID)
	if err != nil {
		return Report{}, err
	}
	return s.ValidateAggregate(ctx, agg)
}

// ValidateAggregate validates an aggregate the caller already loaded. The
// snapshot store uses this so validation and serialization observe the same
// state.
func (s *Service) ValidateAggregate(ctx context.Context, agg tripdomain.Aggregate) (Report, error) {
	candidates, err := s.candidates(ctx, agg)
	if err != nil {
		return Report{}, err
	}

	report := Validate(agg, candidates)
	if s.metrics != nil {
		s.metrics.Validations.WithLabelValues(strconv.FormatBool(report.ReadyForExport)).Inc()
	}
	if !report.ReadyForExport {
		s.log.Info("trip not ready for export",
			zap.String("trip_id", agg.Trip.ID.String()),
			zap.Int("blockers", len(report.Blockers)),
		)
	}
	return report, nil
}

func (s *Service) candidates(ctx context.Context, agg tripdomain.Aggregate) ([]fingerprint.Candidate, error) {
	scope := s.retention.Current().DuplicateScope

	if scope == config.DuplicateScopeGlobal {
		receipts, err := s.receiptRepo.ListAll(ctx, s.db)
		if err != nil {
			return nil, err
		}
		candidates := make([]fingerprint.Candidate, 0, len(receipts))
		for _, receipt := range receipts {
			if receipt == nil {
				continue
			}
			candidates = append(candidates, toCandidate(*receipt))
		}
		return candidates, nil
	}

	candidates := make([]fingerprint.Candidate, 0, len(agg.Receipts))
	for _, receipt := range agg.Receipts {
		candidates = append(candidates, toCandidate(receipt))
	}
	return candidates, nil
}

func toCandidate(receipt receiptdomain.Receipt) fingerprint.Candidate {
	candidate := fingerprint.Candidate{
		ReceiptID:   receipt.ID,
		ImageHash:   receipt.ImageHash,
		AmountCents: receipt.AmountCents,
		ReceiptDate: receipt.ReceiptDate,
		Merchant:    receipt.Vendor,
	}
	if receipt.TripID != nil {
		candidate.TripID = *receipt.TripID
	}
	return candidate
}

var Module = fx.Module("validation.service",
	fx.Provide(New),
)
