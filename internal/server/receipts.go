package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
)

// maxUploadBytes bounds receipt uploads at 20 MiB.
const maxUploadBytes = 20 << 20

func (s *Server) UploadReceipt(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_filename", "file part is required"))
		return
	}
	if file.Size > maxUploadBytes {
		AbortWithError(c, newValidationError("file", "invalid_filename", "file too large"))
		return
	}

	src, err := file.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer src.Close()

	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(content) > maxUploadBytes {
		AbortWithError(c, newValidationError("file", "invalid_filename", "file too large"))
		return
	}

	resp, err := s.receiptSvc.Ingest(c.Request.Context(), receiptdomain.IngestRequest{
		TripID:   strings.TrimSpace(c.Param("id")),
		Filename: file.Filename,
		Content:  content,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReceipts(c *gin.Context) {
	tripID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || tripID == 0 {
		AbortWithError(c, receiptdomain.ErrInvalidTrip)
		return
	}

	resp, err := s.receiptSvc.ListByTrip(c.Request.Context(), tripID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReceiptByID(c *gin.Context) {
	resp, err := s.receiptSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProcessReceipt(c *gin.Context) {
	receipt, result, err := s.receiptSvc.Process(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"receipt": receipt,
		"result":  result,
	}})
}

type receiptFieldsRequest struct {
	OCRText          *string    `json:"ocr_text"`
	Vendor           *string    `json:"vendor"`
	ReceiptDate      *time.Time `json:"receipt_date"`
	AmountCents      *int64     `json:"amount_cents"`
	Confidence       *float64   `json:"confidence"`
	CategoryHint     *string    `json:"category_hint"`
	ProcessingStatus *string    `json:"processing_status"`
	Force            bool       `json:"force"`
}

func (r receiptFieldsRequest) fields() receiptdomain.UpdateFields {
	fields := receiptdomain.UpdateFields{
		OCRText:      r.OCRText,
		Vendor:       r.Vendor,
		ReceiptDate:  r.ReceiptDate,
		AmountCents:  r.AmountCents,
		Confidence:   r.Confidence,
		CategoryHint: r.CategoryHint,
	}
	if r.ProcessingStatus != nil {
		status := receiptdomain.Status(strings.TrimSpace(*r.ProcessingStatus))
		fields.ProcessingStatus = &status
	}
	return fields
}

func (s *Server) ApplyOCRUpdate(c *gin.Context) {
	var req receiptFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.receiptSvc.ApplyOCRUpdate(c.Request.Context(), receiptdomain.OCRUpdateRequest{
		ReceiptID: strings.TrimSpace(c.Param("id")),
		Fields:    req.fields(),
		Force:     req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyManualCorrection(c *gin.Context) {
	var req receiptFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.receiptSvc.ApplyManualCorrection(c.Request.Context(), receiptdomain.ManualCorrectionRequest{
		ReceiptID: strings.TrimSpace(c.Param("id")),
		Fields:    req.fields(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
