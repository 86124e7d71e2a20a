package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ownershipdomain "github.com/smallbiznis/travelmate/internal/ownership/domain"
	"github.com/smallbiznis/travelmate/internal/receipt/domain"
	"github.com/smallbiznis/travelmate/internal/receipt/ocr"
	"github.com/smallbiznis/travelmate/internal/receipt/parse"
	"github.com/smallbiznis/travelmate/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// manualReviewThreshold flags low-confidence extractions for human review.
const manualReviewThreshold = 0.65

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Resolver ownershipdomain.Resolver
	Store    *storage.Store
	OCR      ocr.Provider
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	resolver ownershipdomain.Resolver
	store    *storage.Store
	ocr      ocr.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("receipt.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		resolver: p.Resolver,
		store:    p.Store,
		ocr:      p.OCR,
	}
}

func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (domain.Receipt, error) {
	tripRaw := strings.TrimSpace(req.TripID)
	if tripRaw == "" {
		return domain.Receipt{}, domain.ErrInvalidTrip
	}
	if strings.TrimSpace(req.Filename) == "" {
		return domain.Receipt{}, domain.ErrInvalidFilename
	}
	if len(req.Content) == 0 {
		return domain.Receipt{}, domain.ErrEmptyContent
	}

	tripID, err := snowflake.ParseString(tripRaw)
	if err != nil || tripID == 0 {
		return domain.Receipt{}, domain.ErrInvalidTrip
	}

	path, err := s.store.SaveUpload(tripID.String(), req.Filename, req.Content)
	if err != nil {
		return domain.Receipt{}, err
	}

	sum := sha256.Sum256(req.Content)
	now := time.Now().UTC()
	receipt := domain.Receipt{
		ID:               s.genID.Generate(),
		TripID:           &tripID,
		FilePath:         path,
		ImageHash:        hex.EncodeToString(sum[:]),
		ProcessingStatus: domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, &receipt); err != nil {
		return domain.Receipt{}, err
	}

	s.log.Info("receipt ingested",
		zap.String("receipt_id", receipt.ID.String()),
		zap.String("trip_id", tripID.String()),
		zap.String("image_hash", receipt.ImageHash),
	)
	return receipt, nil
}

func (s *Service) Process(ctx context.Context, receiptID string) (domain.Receipt, domain.UpdateResult, error) {
	id, err := parseID(receiptID)
	if err != nil {
		return domain.Receipt{}, domain.UpdateResult{}, err
	}

	receipt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, domain.UpdateResult{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.UpdateResult{}, domain.ErrNotFound
	}

	content, err := s.store.ReadUpload(receipt.FilePath)
	if err != nil {
		return domain.Receipt{}, domain.UpdateResult{}, err
	}

	doc := ocr.Document{
		Filename:    receipt.FilePath,
		ContentType: http.DetectContentType(content),
		Content:     content,
	}
	if err := doc.Validate(); err != nil {
		return domain.Receipt{}, domain.UpdateResult{}, err
	}

	rawText, err := s.ocr.ExtractText(ctx, doc)
	if err != nil {
		if markErr := s.markFailed(ctx, id); markErr != nil {
			s.log.Warn("mark failed after ocr error", zap.Error(markErr))
		}
		return domain.Receipt{}, domain.UpdateResult{}, err
	}

	fields, extractionConfidence := parse.Extract(rawText)
	merchant := ""
	if fields.Merchant != nil {
		merchant = *fields.Merchant
	}
	classification := parse.Classify(rawText, merchant)
	overall := round3(extractionConfidence*0.65 + classification.Confidence*0.35)

	status := domain.StatusProcessed
	update := domain.UpdateFields{
		OCRText:          &rawText,
		Vendor:           fields.Merchant,
		ReceiptDate:      fields.Date,
		AmountCents:      fields.TotalCents,
		Confidence:       &overall,
		CategoryHint:     &classification.SuggestedCategory,
		ProcessingStatus: &status,
	}

	result, err := s.applyFields(ctx, id, update, ownershipdomain.SourceOCR, false)
	if err != nil {
		return domain.Receipt{}, domain.UpdateResult{}, err
	}

	requiresReview := overall < manualReviewThreshold
	if err := s.repo.SetRequiresReview(ctx, s.db, id, requiresReview); err != nil {
		return domain.Receipt{}, domain.UpdateResult{}, err
	}

	updated, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, domain.UpdateResult{}, err
	}
	if updated == nil {
		return domain.Receipt{}, domain.UpdateResult{}, domain.ErrNotFound
	}

	s.log.Info("receipt processed",
		zap.String("receipt_id", id.String()),
		zap.Float64("confidence", overall),
		zap.String("category_hint", classification.SuggestedCategory),
		zap.Bool("requires_review", requiresReview),
		zap.Strings("skipped", result.Skipped),
	)
	return *updated, result, nil
}

func (s *Service) ApplyOCRUpdate(ctx context.Context, req domain.OCRUpdateRequest) (domain.UpdateResult, error) {
	id, err := parseID(req.ReceiptID)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	return s.applyFields(ctx, id, req.Fields, ownershipdomain.SourceOCR, req.Force)
}

func (s *Service) ApplyManualCorrection(ctx context.Context, req domain.ManualCorrectionRequest) (domain.UpdateResult, error) {
	id, err := parseID(req.ReceiptID)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	return s.applyFields(ctx, id, req.Fields, ownershipdomain.SourceManual, false)
}

func (s *Service) GetByID(ctx context.Context, idRaw string) (domain.Receipt, error) {
	id, err := parseID(idRaw)
	if err != nil {
		return domain.Receipt{}, err
	}
	receipt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return *receipt, nil
}

func (s *Service) ListByTrip(ctx context.Context, tripID snowflake.ID) ([]domain.Receipt, error) {
	items, err := s.repo.ListByTrip(ctx, s.db, tripID)
	if err != nil {
		return nil, err
	}
	receipts := make([]domain.Receipt, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		receipts = append(receipts, *item)
	}
	return receipts, nil
}

// applyFields resolves every set field against the ownership ledger and
// persists the applied subset atomically. Blocked fields are reported, not
// errors.
func (s *Service) applyFields(ctx context.Context, id snowflake.ID, fields domain.UpdateFields, source ownershipdomain.Source, force bool) (domain.UpdateResult, error) {
	changes := fields.Changes()
	if len(changes) == 0 {
		return domain.UpdateResult{}, domain.ErrEmptyUpdate
	}
	if err := fields.Validate(); err != nil {
		return domain.UpdateResult{}, err
	}

	result := domain.UpdateResult{Updated: []string{}, Skipped: []string{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if receipt == nil {
			return domain.ErrNotFound
		}

		var applied []domain.FieldChange
		for _, change := range changes {
			outcome, err := s.resolver.Resolve(ctx, tx, ownershipdomain.FieldWrite{
				EntityName: domain.EntityName,
				EntityID:   id,
				FieldName:  change.Name,
				Source:     source,
				Force:      force,
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

		return s.repo.UpdateColumns(ctx, tx, id, applied)
	})
	if err != nil {
		return domain.UpdateResult{}, err
	}

	sort.Strings(result.Updated)
	sort.Strings(result.Skipped)
	return result, nil
}

// markFailed records an OCR failure as an authoritative status write.
func (s *Service) markFailed(ctx context.Context, id snowflake.ID) error {
	status := domain.StatusFailed
	_, err := s.applyFields(ctx, id, domain.UpdateFields{ProcessingStatus: &status}, ownershipdomain.SourceSystem, false)
	return err
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
