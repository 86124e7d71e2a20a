package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/travelmate/internal/allowance"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"github.com/smallbiznis/travelmate/pkg/db/pagination"
)

type createTripRequest struct {
	EmployeeName  string    `json:"employee_name"`
	ProjectID     string    `json:"project_id"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	IsDomestic    *bool     `json:"is_domestic"`
}

func (s *Server) CreateTrip(c *gin.Context) {
	var req createTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	domestic := true
	if req.IsDomestic != nil {
		domestic = *req.IsDomestic
	}

	resp, err := s.tripSvc.Create(c.Request.Context(), tripdomain.CreateTripRequest{
		EmployeeName:  strings.TrimSpace(req.EmployeeName),
		ProjectID:     strings.TrimSpace(req.ProjectID),
		StartDatetime: req.StartDatetime,
		EndDatetime:   req.EndDatetime,
		IsDomestic:    domestic,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTrips(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status    string `form:"status"`
		ProjectID string `form:"project_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := tripdomain.ListTripsRequest{
		Status:    tripdomain.TripStatus(strings.TrimSpace(query.Status)),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	}
	if raw := strings.TrimSpace(query.ProjectID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("project_id", "invalid_project", "invalid project_id"))
			return
		}
		req.ProjectID = id
	}

	resp, err := s.tripSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTripByID(c *gin.Context) {
	resp, err := s.tripSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateTripStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateTripStatus(c *gin.Context) {
	var req updateTripStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tripSvc.UpdateStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), tripdomain.TripStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type addExpenseRequest struct {
	ReceiptID        string    `json:"receipt_id"`
	Category         string    `json:"category"`
	GrossAmountCents int64     `json:"gross_amount_cents"`
	NetAmountCents   *int64    `json:"net_amount_cents"`
	VATAmountCents   *int64    `json:"vat_amount_cents"`
	Currency         string    `json:"currency"`
	PaymentMethod    string    `json:"payment_method"`
	BookingDate      time.Time `json:"booking_date"`
}

func (s *Server) AddExpense(c *gin.Context) {
	var req addExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tripSvc.AddExpense(c.Request.Context(), tripdomain.AddExpenseRequest{
		TripID:           strings.TrimSpace(c.Param("id")),
		ReceiptID:        strings.TrimSpace(req.ReceiptID),
		Category:         req.Category,
		GrossAmountCents: req.GrossAmountCents,
		NetAmountCents:   req.NetAmountCents,
		VATAmountCents:   req.VATAmountCents,
		Currency:         strings.TrimSpace(req.Currency),
		PaymentMethod:    req.PaymentMethod,
		BookingDate:      req.BookingDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListExpenses(c *gin.Context) {
	resp, err := s.tripSvc.ListExpenses(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateExpenseRequest struct {
	Category         *string    `json:"category"`
	GrossAmountCents *int64     `json:"gross_amount_cents"`
	NetAmountCents   *int64     `json:"net_amount_cents"`
	VATAmountCents   *int64     `json:"vat_amount_cents"`
	Currency         *string    `json:"currency"`
	PaymentMethod    *string    `json:"payment_method"`
	BookingDate      *time.Time `json:"booking_date"`
	Manual           bool       `json:"manual"`
	Force            bool       `json:"force"`
}

func (s *Server) UpdateExpense(c *gin.Context) {
	var req updateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tripSvc.UpdateExpense(c.Request.Context(), tripdomain.UpdateExpenseRequest{
		ExpenseID: strings.TrimSpace(c.Param("id")),
		Fields: tripdomain.ExpenseUpdate{
			Category:         req.Category,
			GrossAmountCents: req.GrossAmountCents,
			NetAmountCents:   req.NetAmountCents,
			VATAmountCents:   req.VATAmountCents,
			Currency:         req.Currency,
			PaymentMethod:    req.PaymentMethod,
			BookingDate:      req.BookingDate,
		},
		Manual: req.Manual,
		Force:  req.Force,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ValidateTrip(c *gin.Context) {
	resp, err := s.validationSvc.ValidateTrip(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type computeAllowanceRequest struct {
	CountryCode        string `json:"country_code"`
	RefreshRuleVersion bool   `json:"refresh_rule_version"`
	Meals              []struct {
		Day       time.Time `json:"day"`
		Breakfast bool      `json:"breakfast"`
		Lunch     bool      `json:"lunch"`
		Dinner    bool      `json:"dinner"`
	} `json:"meals"`
}

func (s *Server) ComputeAllowance(c *gin.Context) {
	var req computeAllowanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	meals := make([]allowance.DayMeals, 0, len(req.Meals))
	for _, m := range req.Meals {
		meals = append(meals, allowance.DayMeals{
			Day:       m.Day,
			Breakfast: m.Breakfast,
			Lunch:     m.Lunch,
			Dinner:    m.Dinner,
		})
	}

	resp, err := s.allowanceSvc.Compute(c.Request.Context(), allowance.ComputeRequest{
		TripID:             strings.TrimSpace(c.Param("id")),
		CountryCode:        strings.TrimSpace(req.CountryCode),
		Meals:              meals,
		RefreshRuleVersion: req.RefreshRuleVersion,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type ensureReimbursementRequest struct {
	ExpectedAmountCents int64 `json:"expected_amount_cents"`
}

func (s *Server) EnsureReimbursement(c *gin.Context) {
	var req ensureReimbursementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tripSvc.EnsureReimbursement(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.ExpectedAmountCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type recordPaymentRequest struct {
	AmountCents int64     `json:"amount_cents"`
	PaidDate    time.Time `json:"paid_date"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tripSvc.RecordPayment(c.Request.Context(), tripdomain.RecordPaymentRequest{
		TripID:      strings.TrimSpace(c.Param("id")),
		AmountCents: req.AmountCents,
		PaidDate:    req.PaidDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
