package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/governa/internal/audit/domain"
	"github.com/smallbiznis/governa/internal/authorization"
	membershipdomain "github.com/smallbiznis/governa/internal/membership/domain"
	modeldomain "github.com/smallbiznis/governa/internal/modelinventory/domain"
	cycledomain "github.com/smallbiznis/governa/internal/monitoringcycle/domain"
	plandomain "github.com/smallbiznis/governa/internal/monitoringplan/domain"
	resultdomain "github.com/smallbiznis/governa/internal/monitoringresult/domain"
	resolverdomain "github.com/smallbiznis/governa/internal/scoperesolver/domain"
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
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
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
	return &ValidationErrors{
		Errors: []ValidationError{
			{Field: "request", Code: "invalid_request", Message: "invalid request"},
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

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: "request", Code: code, Message: code},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidRole):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
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
		errors.Is(err, membershipdomain.ErrInvalidPlan),
		errors.Is(err, membershipdomain.ErrInvalidModel),
		errors.Is(err, modeldomain.ErrInvalidModel),
		errors.Is(err, modeldomain.ErrInvalidName),
		errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, plandomain.ErrInvalidName),
		errors.Is(err, plandomain.ErrInvalidFrequency),
		errors.Is(err, cycledomain.ErrInvalidCycle),
		errors.Is(err, cycledomain.ErrInvalidPlan),
		errors.Is(err, cycledomain.ErrInvalidPeriod),
		errors.Is(err, cycledomain.ErrInvalidStatus),
		errors.Is(err, resultdomain.ErrInvalidCycle),
		errors.Is(err, resultdomain.ErrInvalidModel),
		errors.Is(err, resultdomain.ErrInvalidMetricKey),
		errors.Is(err, resolverdomain.ErrInvalidCycle),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, membershipdomain.ErrTransferBlocked),
		errors.Is(err, membershipdomain.ErrModelAssignedElsewhere),
		errors.Is(err, membershipdomain.ErrConcurrentModification),
		errors.Is(err, cycledomain.ErrCycleNotPending),
		errors.Is(err, cycledomain.ErrInvalidTransition),
		errors.Is(err, cycledomain.ErrDuplicatePeriod),
		errors.Is(err, resultdomain.ErrCycleNotCollecting),
		errors.Is(err, resultdomain.ErrModelNotInScope),
		errors.Is(err, resultdomain.ErrDuplicateResult),
		errors.Is(err, modeldomain.ErrModelRetired):
		return true
	default:
		return false
	}
}

// conflictMessage keeps the cycle status visible on blocked transfers so the
// caller sees a structured conflict instead of a generic one.
func conflictMessage(err error) string {
	var blocked *membershipdomain.TransferBlockedError
	if errors.As(err, &blocked) {
		return blocked.Error()
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, membershipdomain.ErrPlanNotFound),
		errors.Is(err, modeldomain.ErrModelNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, plandomain.ErrNoVersion),
		errors.Is(err, cycledomain.ErrCycleNotFound),
		errors.Is(err, cycledomain.ErrPlanNotFound),
		errors.Is(err, resultdomain.ErrCycleNotFound),
		errors.Is(err, resolverdomain.ErrCycleNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
