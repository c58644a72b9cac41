package service

import (
	"errors"
	"fmt"
	"testing"

	"shiftbook/backend/internal/geofence"
	"shiftbook/backend/internal/lock"
	"shiftbook/backend/internal/store"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fieldError("employee_id", "is required"), CodeValidation},
		{fmt.Errorf("parse: %w", geofence.ErrInvalidCoordinateFormat), CodeValidation},
		{ErrInvalidClockOrder, CodeValidation},
		{fmt.Errorf("%w: E9", ErrEmployeeNotFound), CodeNotFound},
		{store.ErrNotFound, CodeNotFound},
		{fmt.Errorf("append: %w", store.ErrDuplicateClockIn), CodeDuplicateClockIn},
		{store.ErrDuplicateClockOut, CodeDuplicateClockOut},
		{store.ErrMissingClockIn, CodeMissingClockIn},
		{store.ErrDuplicateRevenueRecord, CodeDuplicateRevenueRecord},
		{fmt.Errorf("%w: 150m", geofence.ErrOutOfRange), CodeOutOfRange},
		{lock.ErrTimeout, CodeLockTimeout},
		{errors.New("connection reset"), CodeSystem},
		{ErrInternal, CodeSystem},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestEnvelopeHidesSystemErrors(t *testing.T) {
	env := Envelope(nil, errors.New("pq: password authentication failed"))
	if env.Success || env.Code != CodeSystem {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Message != systemErrorMessage {
		t.Fatalf("expected generic message, got %q", env.Message)
	}
}

func TestEnvelopeCarriesFieldErrors(t *testing.T) {
	env := Envelope(nil, fieldError("gps_coordinate", "is required"))
	if env.Code != CodeValidation || len(env.Errors) != 1 || env.Errors[0].Field != "gps_coordinate" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	ok := Envelope(map[string]int{"n": 1}, nil)
	if !ok.Success || ok.Data == nil || ok.Code != "" {
		t.Fatalf("unexpected success envelope: %+v", ok)
	}
}
