package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/travelmate/internal/trip/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTrip(ctx context.Context, db *gorm.DB, trip *domain.Trip) error {
	return db.WithContext(ctx).Create(trip).Error
}

func (r *repo) FindTripByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Trip, error) {
	var trip domain.Trip
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&trip).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &trip, nil
}

func (r *repo) ListTrips(ctx context.Context, db *gorm.DB, filter domain.ListTripsFilter) ([]*domain.Trip, error) {
	query := db.WithContext(ctx).Model(&domain.Trip{})
	if filter.ProjectID != 0 {
		query = query.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	query = query.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit + 1)
	}

	var trips []*domain.Trip
	if err := query.Find(&trips).Error; err != nil {
		return nil, err
	}
	return trips, nil
}

func (r *repo) UpdateTripColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []domain.FieldChange) error {
	return updateColumns(ctx, db, &domain.Trip{}, id, changes)
}

func (r *repo) InsertExpense(ctx context.Context, db *gorm.DB, item *domain.ExpenseItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) FindExpenseByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ExpenseItem, error) {
	var item domain.ExpenseItem
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListExpensesByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) ([]*domain.ExpenseItem, error) {
	var items []*domain.ExpenseItem
	err := db.WithContext(ctx).
		Model(&domain.ExpenseItem{}).
		Where("trip_id = ?", tripID).
		Order("booking_date asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateExpenseColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []domain.FieldChange) error {
	return updateColumns(ctx, db, &domain.ExpenseItem{}, id, changes)
}

func (r *repo) FindAllowanceByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) (*domain.AllowanceCalculation, error) {
	var calc domain.AllowanceCalculation
	err := db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Take(&calc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &calc, nil
}

func (r *repo) UpsertAllowance(ctx context.Context, db *gorm.DB, calc *domain.AllowanceCalculation) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "trip_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"allowance_per_day_cents",
				"rule_version",
				"meal_per_diem_cents",
				"deduction_cents",
				"total_allowance_cents",
				"total_payable_cents",
				"updated_at",
			}),
		}).
		Create(calc).Error
}

func (r *repo) FindReimbursementByTrip(ctx context.Context, db *gorm.DB, tripID snowflake.ID) (*domain.Reimbursement, error) {
	var reimbursement domain.Reimbursement
	err := db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Take(&reimbursement).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &reimbursement, nil
}

func (r *repo) InsertReimbursement(ctx context.Context, db *gorm.DB, reimbursement *domain.Reimbursement) error {
	return db.WithContext(ctx).Create(reimbursement).Error
}

func (r *repo) UpdateReimbursementColumns(ctx context.Context, db *gorm.DB, id snowflake.ID, changes []domain.FieldChange) error {
	return updateColumns(ctx, db, &domain.Reimbursement{}, id, changes)
}

func updateColumns(ctx context.Context, db *gorm.DB, model any, id snowflake.ID, changes []domain.FieldChange) error {
	if len(changes) == 0 {
		return nil
	}
	columns := make(map[string]any, len(changes)+1)
	for _, change := range changes {
		columns[change.Name] = change.Value
	}
	columns["updated_at"] = time.Now().UTC()
	return db.WithContext(ctx).
		Model(model).
		Where("id = ?", id).
		Updates(columns).Error
}
