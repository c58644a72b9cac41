package service

import (
	"errors"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/geofence"
	"shiftbook/backend/internal/lock"
	"shiftbook/backend/internal/store"
)

const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeDuplicateClockIn       = "DUPLICATE_CLOCK_IN"
	CodeDuplicateClockOut      = "DUPLICATE_CLOCK_OUT"
	CodeMissingClockIn         = "MISSING_CLOCK_IN"
	CodeDuplicateRevenueRecord = "DUPLICATE_REVENUE_RECORD"
	CodeOutOfRange             = "OUT_OF_RANGE"
	CodeLockTimeout            = "LOCK_TIMEOUT"
	CodeSystem                 = "SYSTEM_ERROR"
)

const systemErrorMessage = "system error, please try again later"

// ErrorCode classifies err into one of the envelope codes.
func ErrorCode(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr),
		errors.Is(err, geofence.ErrInvalidCoordinateFormat),
		errors.Is(err, geofence.ErrInvalidCoordinateRange),
		errors.Is(err, ErrInvalidClockOrder),
		errors.Is(err, ErrEmployeeInactive),
		errors.Is(err, store.ErrInvalidRecord):
		return CodeValidation
	case errors.Is(err, ErrEmployeeNotFound),
		errors.Is(err, geofence.ErrStoreNotFound),
		errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrDuplicateClockIn):
		return CodeDuplicateClockIn
	case errors.Is(err, store.ErrDuplicateClockOut):
		return CodeDuplicateClockOut
	case errors.Is(err, store.ErrMissingClockIn):
		return CodeMissingClockIn
	case errors.Is(err, store.ErrDuplicateRevenueRecord):
		return CodeDuplicateRevenueRecord
	case errors.Is(err, geofence.ErrOutOfRange):
		return CodeOutOfRange
	case errors.Is(err, lock.ErrTimeout):
		return CodeLockTimeout
	default:
		return CodeSystem
	}
}

// Envelope wraps an operation result. System errors carry a generic message;
// the underlying error is expected to be logged by the caller.
func Envelope(data any, err error) domain.Envelope {
	if err == nil {
		return domain.Envelope{Success: true, Data: data}
	}

	code := ErrorCode(err)
	env := domain.Envelope{Success: false, Code: code, Message: err.Error()}
	switch code {
	case CodeSystem:
		env.Message = systemErrorMessage
	case CodeValidation:
		var verr *ValidationError
		if errors.As(err, &verr) {
			env.Errors = verr.Fields
		}
	case CodeLockTimeout:
		env.Message = "ledger is busy, please retry"
	}
	return env
}
