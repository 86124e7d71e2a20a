package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/travelmate/internal/allowance"
	customerdomain "github.com/smallbiznis/travelmate/internal/customer/domain"
	projectdomain "github.com/smallbiznis/travelmate/internal/project/domain"
	receiptdomain "github.com/smallbiznis/travelmate/internal/receipt/domain"
	snapshotdomain "github.com/smallbiznis/travelmate/internal/snapshot/domain"
	tripdomain "github.com/smallbiznis/travelmate/internal/trip/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Blockers []string          `json:"blockers,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var notReady *snapshotdomain.NotReadyError
	if errors.As(err, &notReady) {
		return http.StatusConflict, errorPayload{
			Type:     "not_ready",
			Message:  notReady.Error(),
			Blockers: notReady.Blockers,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, customerdomain.ErrDuplicate),
		errors.Is(err, projectdomain.ErrDuplicateCode):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, allowance.ErrInvalidSpan),
		errors.Is(err, allowance.ErrUnknownCountry):
		return true
	case isCustomerValidationError(err),
		isProjectValidationError(err),
		isTripValidationError(err),
		isReceiptValidationError(err):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, customerdomain.ErrNotFound),
		errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, tripdomain.ErrNotFound),
		errors.Is(err, tripdomain.ErrExpenseNotFound),
		errors.Is(err, receiptdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isCustomerValidationError(err error) bool {
	switch err {
	case customerdomain.ErrInvalidName,
		customerdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}

func isProjectValidationError(err error) bool {
	switch err {
	case projectdomain.ErrInvalidName,
		projectdomain.ErrInvalidCode,
		projectdomain.ErrInvalidCustomer,
		projectdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}

func isTripValidationError(err error) bool {
	switch err {
	case tripdomain.ErrInvalidID,
		tripdomain.ErrInvalidEmployee,
		tripdomain.ErrInvalidProject,
		tripdomain.ErrInvalidDates,
		tripdomain.ErrInvalidStatus,
		tripdomain.ErrInvalidCategory,
		tripdomain.ErrInvalidAmount,
		tripdomain.ErrInvalidCurrency,
		tripdomain.ErrInvalidReceipt,
		tripdomain.ErrInvalidPayment,
		tripdomain.ErrInvalidPageToken,
		tripdomain.ErrEmptyUpdate:
		return true
	default:
		return false
	}
}

func isReceiptValidationError(err error) bool {
	switch err {
	case receiptdomain.ErrInvalidID,
		receiptdomain.ErrInvalidTrip,
		receiptdomain.ErrInvalidFilename,
		receiptdomain.ErrEmptyContent,
		receiptdomain.ErrEmptyUpdate,
		receiptdomain.ErrInvalidAmount,
		receiptdomain.ErrInvalidConfidence,
		receiptdomain.ErrInvalidStatus:
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
