package response

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/notification"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/domain/user"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var transitionErr *payroll.TransitionError
	var upstreamErr *payroll.UpstreamError

	switch {
	// Auth errors
	case errors.Is(err, user.ErrActorMissing), errors.Is(err, user.ErrInvalidTokenClaims):
		Unauthorized(w, "Unauthorized")
	case errors.Is(err, payroll.ErrForbidden):
		Forbidden(w, err.Error())

	// Payroll domain errors
	case errors.Is(err, payroll.ErrCycleNotFound):
		NotFound(w, "Payroll cycle not found")
	case errors.Is(err, payroll.ErrSlipNotFound):
		NotFound(w, "Payroll slip not found")
	case errors.Is(err, payroll.ErrEmployeeNotFound):
		NotFound(w, "Employee not found")
	case errors.Is(err, payroll.ErrDuplicatePeriod):
		Conflict(w, "A payroll cycle already exists for this period")
	case errors.Is(err, payroll.ErrDuplicateSlip):
		Conflict(w, "Employee already has a slip in this cycle")
	case errors.As(err, &transitionErr):
		Conflict(w, transitionErr.Error())
	case errors.Is(err, payroll.ErrConcurrentModification):
		Conflict(w, "The slip was modified by another request, reload and retry")
	case errors.Is(err, payroll.ErrNoEligibleEmployees):
		ValidationError(w, map[string]string{"employee_ids": err.Error()})
	case errors.Is(err, payroll.ErrInvalidPeriod):
		ValidationError(w, map[string]string{"period_key": err.Error()})
	case errors.As(err, &upstreamErr):
		BadGateway(w, upstreamErr.Collaborator+" is unavailable, retry later")

	// Notification domain errors
	case errors.Is(err, notification.ErrNotificationNotFound):
		NotFound(w, "Notification not found")
	case errors.Is(err, notification.ErrQueueFull), errors.Is(err, notification.ErrServiceStopped):
		ServiceUnavailable(w, "Notifications are temporarily unavailable")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
