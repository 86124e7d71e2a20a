package allowance

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ownershipdomain "github.com/smallbiznis/travelmate/internal/ownership/domain"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ledger field names for allowance writes. Allowance rows are always
// system-owned; the calculation is authoritative.
const (
	fieldAllowancePerDay = "allowance_per_day_cents"
	fieldRuleVersion     = "rule_version"
	fieldMealPerDiem     = "meal_per_diem_cents"
	fieldDeduction       = "deduction_cents"
	fieldTotalAllowance  = "total_allowance_cents"
	fieldTotalPayable    = "total_payable_cents"
)

// ComputeRequest drives one per-diem calculation for a trip.
type ComputeRequest struct {
	TripID      string
	CountryCode string
	Meals       []DayMeals
	// RefreshRuleVersion stamps the current rule version even when an older
	// calculation exists. Without it, recomputation preserves the version
	// that produced the original numbers.
	RefreshRuleVersion bool
}

// ComputeResult pairs the persisted row with the traceable steps.
type ComputeResult struct {
	Calculation tripdomain.AllowanceCalculation `json:"calculation"`
	Steps       []string                        `json:"steps"`
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	TripRepo tripdomain.Repository
	Resolver ownershipdomain.Resolver
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	tripRepo tripdomain.Repository
	resolver ownershipdomain.Resolver
}

func New(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("allowance.service"),
		genID:    p.GenID,
		tripRepo: p.TripRepo,
		resolver: p.Resolver,
	}
}

// Compute calculates the per-diem for a trip and persists the result as an
// authoritative system write.
func (s *Service) Compute(ctx context.Context, req ComputeRequest) (ComputeResult, error) {
	tripID, err := snowflake.ParseString(strings.TrimSpace(req.TripID))
	if err != nil || tripID == 0 {
		return ComputeResult{}, tripdomain.ErrInvalidID
	}
	trip, err := s.tripRepo.FindTripByID(ctx, s.db, tripID)
	if err != nil {
		return ComputeResult{}, err
	}
	if trip == nil {
		return ComputeResult{}, tripdomain.ErrNotFound
	}

	country := req.CountryCode
	if country == "" {
		country = "DE"
	}
	result, err := Calculate(country, trip.StartDatetime, trip.EndDatetime, req.Meals)
	if err != nil {
		return ComputeResult{}, err
	}

	var calc tripdomain.AllowanceCalculation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.tripRepo.FindAllowanceByTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		ruleVersion := result.RuleVersion
		calc = tripdomain.AllowanceCalculation{
			ID:                   s.genID.Generate(),
			TripID:               tripID,
			AllowancePerDayCents: result.Rates.FullDayCents,
			RuleVersion:          ruleVersion,
			MealPerDiemCents:     result.Rates.PartialDayCents,
			DeductionCents:       result.DeductionCents,
			TotalAllowanceCents:  result.GrossAllowanceCents,
			TotalPayableCents:    result.NetAllowanceCents,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if existing != nil {
			calc.ID = existing.ID
			calc.CreatedAt = existing.CreatedAt
			if !req.RefreshRuleVersion {
				calc.RuleVersion = existing.RuleVersion
			}
		}

		if err := s.tripRepo.UpsertAllowance(ctx, tx, &calc); err != nil {
			return err
		}
		return s.resolveSystemWrites(ctx, tx, calc.ID)
	})
	if err != nil {
		return ComputeResult{}, err
	}

	s.log.Info("allowance computed",
		zap.String("trip_id", tripID.String()),
		zap.String("rule_version", calc.RuleVersion),
		zap.Int64("total_payable_cents", calc.TotalPayableCents),
	)
	return ComputeResult{Calculation: calc, Steps: result.Steps}, nil
}

func (s *Service) resolveSystemWrites(ctx context.Context, tx *gorm.DB, calcID snowflake.ID) error {
	fields := []string{
		fieldAllowancePerDay,
		fieldRuleVersion,
		fieldMealPerDiem,
		fieldDeduction,
		fieldTotalAllowance,
		fieldTotalPayable,
	}
	for _, field := range fields {
		_, err := s.resolver.Resolve(ctx, tx, ownershipdomain.FieldWrite{
			EntityName: tripdomain.EntityAllowance,
			EntityID:   calcID,
			FieldName:  field,
			Source:     ownershipdomain.SourceSystem,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("allowance.service",
	fx.Provide(New),
)
