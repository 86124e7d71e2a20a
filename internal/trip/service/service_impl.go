package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ownershipdomain "github.com/smallbiznis/travelmate/internal/ownership/domain"
	projectdomain "github.com/smallbiznis/travelmate/internal/project/domain"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	"github.com/smallbiznis/travelmate/internal/trip/domain"
	"github.com/smallbiznis/travelmate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	ProjectRepo projectdomain.Repository
	ReceiptRepo receiptdomain.Repository
	Resolver    ownershipdomain.Resolver
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	projectRepo projectdomain.Repository
	receiptRepo receiptdomain.Repository
	resolver    ownershipdomain.Resolver
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("trip.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		projectRepo: p.ProjectRepo,
		receiptRepo: p.ReceiptRepo,
		resolver:    p.Resolver,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTripRequest) (domain.Trip, error) {
	employee := strings.TrimSpace(req.EmployeeName)
	if employee == "" {
		return domain.Trip{}, domain.ErrInvalidEmployee
	}
	if req.StartDatetime.IsZero() || req.EndDatetime.IsZero() || req.EndDatetime.Before(req.StartDatetime) {
		return domain.Trip{}, domain.ErrInvalidDates
	}

	projectID, err := snowflake.ParseString(strings.TrimSpace(req.ProjectID))
	if err != nil || projectID == 0 {
		return domain.Trip{}, domain.ErrInvalidProject
	}
	project, err := s.projectRepo.FindByID(ctx, s.db, projectID)
	if err != nil {
		return domain.Trip{}, err
	}
	if project == nil {
		return domain.Trip{}, domain.ErrInvalidProject
	}

	now := time.Now().UTC()
	trip := domain.Trip{
		ID:            s.genID.Generate(),
		EmployeeName:  employee,
		ProjectID:     project.ID,
		CustomerID:    project.CustomerID,
		StartDatetime: req.StartDatetime.UTC(),
		EndDatetime:   req.EndDatetime.UTC(),
		IsDomestic:    req.IsDomestic,
		Status:        domain.TripStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertTrip(ctx, s.db, &trip); err != nil {
		return domain.Trip{}, err
	}

	s.log.Info("trip created",
		zap.String("trip_id", trip.ID.String()),
		zap.String("project_id", project.ID.String()),
		zap.String("employee", employee),
	)
	return trip, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Trip, error) {
	tripID, err := parseID(id)
	if err != nil {
		return domain.Trip{}, err
	}
	trip, err := s.repo.FindTripByID(ctx, s.db, tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	if trip == nil {
		return domain.Trip{}, domain.ErrNotFound
	}
	return *trip, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTripsRequest) (domain.ListTripsResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return domain.ListTripsResponse{}, domain.ErrInvalidStatus
	}

	var cursor *domain.TripCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListTripsResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListTripsResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListTripsResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.TripCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.ListTrips(ctx, s.db, domain.ListTripsFilter{
		ProjectID: req.ProjectID,
		Status:    req.Status,
		Cursor:    cursor,
		Limit:     int(pageSize),
	})
	if err != nil {
		return domain.ListTripsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(trip *domain.Trip) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        trip.ID.String(),
			CreatedAt: trip.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	trips := make([]domain.Trip, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		trips = append(trips, *item)
	}

	resp := domain.ListTripsResponse{Trips: trips}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.TripStatus) (domain.Trip, error) {
	if !status.Valid() {
		return domain.Trip{}, domain.ErrInvalidStatus
	}
	tripID, err := parseID(id)
	if err != nil {
		return domain.Trip{}, err
	}
	trip, err := s.repo.FindTripByID(ctx, s.db, tripID)
	if err != nil {
		return domain.Trip{}, err
	}
	if trip == nil {
		return domain.Trip{}, domain.ErrNotFound
	}

	err = s.repo.UpdateTripColumns(ctx, s.db, tripID, []domain.FieldChange{{Name: "status", Value: status}})
	if err != nil {
		return domain.Trip{}, err
	}
	trip.Status = status
	return *trip, nil
}

func (s *Service) AddExpense(ctx context.Context, req domain.AddExpenseRequest) (domain.ExpenseItem, error) {
	tripID, err := parseID(req.TripID)
	if err != nil {
		return domain.ExpenseItem{}, err
	}
	trip, err := s.repo.FindTripByID(ctx, s.db, tripID)
	if err != nil {
		return domain.ExpenseItem{}, err
	}
	if trip == nil {
		return domain.ExpenseItem{}, domain.ErrNotFound
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		return domain.ExpenseItem{}, domain.ErrInvalidCategory
	}
	if req.GrossAmountCents < 0 {
		return domain.ExpenseItem{}, domain.ErrInvalidAmount
	}
	if !domain.ValidCurrency(req.Currency) {
		return domain.ExpenseItem{}, domain.ErrInvalidCurrency
	}
	if req.BookingDate.IsZero() {
		return domain.ExpenseItem{}, domain.ErrInvalidDates
	}

	var receiptID *snowflake.ID
	if raw := strings.TrimSpace(req.ReceiptID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return domain.ExpenseItem{}, domain.ErrInvalidReceipt
		}
		receipt, err := s.receiptRepo.FindByID(ctx, s.db, id)
		if err != nil {
			return domain.ExpenseItem{}, err
		}
		if receipt == nil {
			return domain.ExpenseItem{}, domain.ErrInvalidReceipt
		}
		receiptID = &id
	}

	now := time.Now().UTC()
	item := domain.ExpenseItem{
		ID:               s.genID.Generate(),
		TripID:           tripID,
		ReceiptID:        receiptID,
		Category:         category,
		GrossAmountCents: req.GrossAmountCents,
		NetAmountCents:   req.NetAmountCents,
		VATAmountCents:   req.VATAmountCents,
		Currency:         strings.ToUpper(req.Currency),
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		BookingDate:      req.BookingDate.UTC(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.InsertExpense(ctx, s.db, &item); err != nil {
		return domain.ExpenseItem{}, err
	}
	return item, nil
}

func (s *Service) UpdateExpense(ctx context.Context, req domain.UpdateExpenseRequest) (domain.FieldUpdateResult, error) {
	expenseID, err := parseID(req.ExpenseID)
	if err != nil {
		return domain.FieldUpdateResult{}, err
	}
	changes := req.Fields.Changes()
	if len(changes) == 0 {
		return domain.FieldUpdateResult{}, domain.ErrEmptyUpdate
	}
	if err := req.Fields.Validate(); err != nil {
		return domain.FieldUpdateResult{}, err
	}

	source := ownershipdomain.SourceOCR
	if req.Manual {
		source = ownershipdomain.SourceManual
	}

	result := domain.FieldUpdateResult{Updated: []string{}, Skipped: []string{}}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindExpenseByID(ctx, tx, expenseID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrExpenseNotFound
		}

		var applied []domain.FieldChange
		for _, change := range changes {
			outcome, err := s.resolver.Resolve(ctx, tx, ownershipdomain.FieldWrite{
				EntityName: domain.EntityExpenseItem,
				EntityID:   expenseID,
				FieldName:  change.Name,
				Source:     source,
				Force:      req.Force,
			})
			if err != nil {
				return err
			}
			if outcome.Applied() {
				applied = append(applied, change)
				result.Updated = append(result.Updated, change.Name)
			} else {
				result.Skipped = append(result.Skipped, change.Name)
			}
		}

		return s.repo.UpdateExpenseColumns(ctx, tx, expenseID, applied)
	})
	if err != nil {
		return domain.FieldUpdateResult{}, err
	}

	sort.Strings(result.Updated)
	sort.Strings(result.Skipped)
	return result, nil
}

func (s *Service) ListExpenses(ctx context.Context, tripID string) ([]domain.ExpenseItem, error) {
	id, err := parseID(tripID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListExpensesByTrip(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	expenses := make([]domain.ExpenseItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		expenses = append(expenses, *item)
	}
	return expenses, nil
}

// LoadAggregate reads the whole trip graph inside one transaction so the
// rows cannot drift apart between queries. On postgres the transaction runs
// at repeatable read; sqlite transactions are serializable already.
func (s *Service) LoadAggregate(ctx context.Context, tripID snowflake.ID) (domain.Aggregate, error) {
	var agg domain.Aggregate

	var opts []*sql.TxOptions
	if s.db.Dialector.Name() == "postgres" {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadAggregateTx(ctx, tx, tripID)
		if err != nil {
			return err
		}
		agg = loaded
		return nil
	}, opts...)
	if err != nil {
		return domain.Aggregate{}, err
	}
	return agg, nil
}

func (s *Service) loadAggregateTx(ctx context.Context, tx *gorm.DB, tripID snowflake.ID) (domain.Aggregate, error) {
	trip, err := s.repo.FindTripByID(ctx, tx, tripID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	if trip == nil {
		return domain.Aggregate{}, domain.ErrNotFound
	}

	items, err := s.repo.ListExpensesByTrip(ctx, tx, tripID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	expenses := make([]domain.ExpenseItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		expenses = append(expenses, *item)
	}

	receipts := map[snowflake.ID]receiptdomain.Receipt{}
	uploaded, err := s.receiptRepo.ListByTrip(ctx, tx, tripID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	for _, receipt := range uploaded {
		if receipt != nil {
			receipts[receipt.ID] = *receipt
		}
	}
	// Linked receipts may have been uploaded outside this trip.
	for _, expense := range expenses {
		if expense.ReceiptID == nil {
			continue
		}
		if _, ok := receipts[*expense.ReceiptID]; ok {
			continue
		}
		receipt, err := s.receiptRepo.FindByID(ctx, tx, *expense.ReceiptID)
		if err != nil {
			return domain.Aggregate{}, err
		}
		if receipt != nil {
			receipts[receipt.ID] = *receipt
		}
	}

	allowance, err := s.repo.FindAllowanceByTrip(ctx, tx, tripID)
	if err != nil {
		return domain.Aggregate{}, err
	}
	reimbursement, err := s.repo.FindReimbursementByTrip(ctx, tx, tripID)
	if err != nil {
		return domain.Aggregate{}, err
	}

	return domain.Aggregate{
		Trip:          *trip,
		Expenses:      expenses,
		Receipts:      receipts,
		Allowance:     allowance,
		Reimbursement: reimbursement,
	}, nil
}

func (s *Service) EnsureReimbursement(ctx context.Context, tripID string, expectedAmountCents int64) (domain.Reimbursement, error) {
	id, err := parseID(tripID)
	if err != nil {
		return domain.Reimbursement{}, err
	}
	if expectedAmountCents < 0 {
		return domain.Reimbursement{}, domain.ErrInvalidAmount
	}
	trip, err := s.repo.FindTripByID(ctx, s.db, id)
	if err != nil {
		return domain.Reimbursement{}, err
	}
	if trip == nil {
		return domain.Reimbursement{}, domain.ErrNotFound
	}

	var out domain.Reimbursement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindReimbursementByTrip(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			now := time.Now().UTC()
			out = domain.Reimbursement{
				ID:                  s.genID.Generate(),
				TripID:              id,
				ExpectedAmountCents: expectedAmountCents,
				PaidAmountCents:     0,
				OpenAmountCents:     expectedAmountCents,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			return s.repo.InsertReimbursement(ctx, tx, &out)
		}

		open := clampNonNegative(expectedAmountCents - existing.PaidAmountCents)
		changes := []domain.FieldChange{
			{Name: domain.FieldExpectedAmount, Value: expectedAmountCents},
			{Name: domain.FieldOpenAmount, Value: open},
		}
		if err := s.resolveSystemWrites(ctx, tx, existing.ID, changes); err != nil {
			return err
		}
		if err := s.repo.UpdateReimbursementColumns(ctx, tx, existing.ID, changes); err != nil {
			return err
		}
		existing.ExpectedAmountCents = expectedAmountCents
		existing.OpenAmountCents = open
		out = *existing
		return nil
	})
	if err != nil {
		return domain.Reimbursement{}, err
	}
	return out, nil
}

func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (domain.Reimbursement, error) {
	id, err := parseID(req.TripID)
	if err != nil {
		return domain.Reimbursement{}, err
	}
	if req.AmountCents <= 0 {
		return domain.Reimbursement{}, domain.ErrInvalidPayment
	}
	paidDate := req.PaidDate
	if paidDate.IsZero() {
		paidDate = time.Now()
	}
	paidDate = paidDate.UTC()

	var out domain.Reimbursement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindReimbursementByTrip(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}

		paid := existing.PaidAmountCents + req.AmountCents
		open := clampNonNegative(existing.ExpectedAmountCents - paid)
		changes := []domain.FieldChange{
			{Name: domain.FieldPaidAmount, Value: paid},
			{Name: domain.FieldOpenAmount, Value: open},
			{Name: domain.FieldPaidDate, Value: paidDate},
		}
		if err := s.resolveSystemWrites(ctx, tx, existing.ID, changes); err != nil {
			return err
		}
		if err := s.repo.UpdateReimbursementColumns(ctx, tx, existing.ID, changes); err != nil {
			return err
		}

		existing.PaidAmountCents = paid
		existing.OpenAmountCents = open
		existing.PaidDate = &paidDate
		out = *existing
		return nil
	})
	if err != nil {
		return domain.Reimbursement{}, err
	}

	s.log.Info("payment recorded",
		zap.String("trip_id", id.String()),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Int64("open_amount_cents", out.OpenAmountCents),
	)
	return out, nil
}

// resolveSystemWrites records authoritative recomputation ownership for the
// given fields. System writes always apply.
func (s *Service) resolveSystemWrites(ctx context.Context, tx *gorm.DB, reimbursementID snowflake.ID, changes []domain.FieldChange) error {
	for _, change := range changes {
		_, err := s.resolver.Resolve(ctx, tx, ownershipdomain.FieldWrite{
			EntityName: domain.EntityReimbursement,
			EntityID:   reimbursementID,
			FieldName:  change.Name,
			Source:     ownershipdomain.SourceSystem,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
