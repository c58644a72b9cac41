package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("SHIFTBOOK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SHIFTBOOK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}

func TestAttendanceDayInvariants(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	employeeID := fmt.Sprintf("IT-%d", time.Now().UnixNano())
	workDate := "2026-03-02"
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE employee_id = $1`, employeeID)
	})

	clockOut := domain.AttendanceRecord{
		EmployeeID:    employeeID,
		EmployeeName:  "Integration",
		WorkDate:      workDate,
		Timestamp:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Type:          domain.ClockTypeOut,
		StoreName:     "Main",
		GPSCoordinate: "25.0330,121.5654",
		LateStatus:    domain.LateStatusNormal,
	}
	if _, err := s.AppendAttendance(ctx, clockOut); !errors.Is(err, store.ErrMissingClockIn) {
		t.Fatalf("expected ErrMissingClockIn, got %v", err)
	}

	clockIn := clockOut
	clockIn.Type = domain.ClockTypeIn
	clockIn.Timestamp = time.Date(2026, 3, 2, 1, 5, 0, 0, time.UTC)
	clockIn.LateStatus = domain.LateStatusLate
	clockIn.LateMinutes = 5
	clockIn.DeviceFingerprint = `{"ua":"x"}`
	if _, err := s.AppendAttendance(ctx, clockIn); err != nil {
		t.Fatalf("clock in: %v", err)
	}
	if _, err := s.AppendAttendance(ctx, clockIn); !errors.Is(err, store.ErrDuplicateClockIn) {
		t.Fatalf("expected ErrDuplicateClockIn, got %v", err)
	}

	if _, err := s.AppendAttendance(ctx, clockOut); err != nil {
		t.Fatalf("clock out: %v", err)
	}
	if _, err := s.AppendAttendance(ctx, clockOut); !errors.Is(err, store.ErrDuplicateClockOut) {
		t.Fatalf("expected ErrDuplicateClockOut, got %v", err)
	}

	found, err := s.FindAttendance(ctx, employeeID, workDate, domain.ClockTypeIn)
	if err != nil {
		t.Fatalf("find clock in: %v", err)
	}
	if found.WorkDate != workDate || found.LateMinutes != 5 {
		t.Fatalf("unexpected clock in: %+v", found)
	}

	records, err := s.ListAttendance(ctx, employeeID, "2026-03-01", "2026-03-31", 10)
	if err != nil {
		t.Fatalf("list attendance: %v", err)
	}
	if len(records) != 2 || records[0].Type != domain.ClockTypeOut {
		t.Fatalf("expected newest-first pair, got %+v", records)
	}

	lateDays, lateMinutes, err := s.SumLateMinutes(ctx, employeeID, "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("sum late minutes: %v", err)
	}
	if lateDays != 1 || lateMinutes != 5 {
		t.Fatalf("expected 1 late day / 5 minutes, got %d / %d", lateDays, lateMinutes)
	}

	fps, err := s.RecentFingerprints(ctx, employeeID, 30)
	if err != nil {
		t.Fatalf("recent fingerprints: %v", err)
	}
	if len(fps) != 1 {
		t.Fatalf("expected 1 fingerprint, got %d", len(fps))
	}
}

func TestRevenueUniqueAndUpdate(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	employeeID := fmt.Sprintf("IT-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM revenue_records WHERE employee_id = $1`, employeeID)
	})

	record := domain.RevenueRecord{
		EmployeeID:    employeeID,
		EmployeeName:  "Integration",
		BusinessDate:  "2026-03-02",
		StoreName:     "Main",
		OrderCount:    10,
		OnSiteRevenue: 20000,
		TotalRevenue:  20000,
		NetIncome:     20000,
		BonusType:     domain.BonusTypeWeekday,
		ComputedBonus: 2100,
	}
	created, err := s.CreateRevenue(ctx, record)
	if err != nil {
		t.Fatalf("create revenue: %v", err)
	}
	if _, err := s.CreateRevenue(ctx, record); !errors.Is(err, store.ErrDuplicateRevenueRecord) {
		t.Fatalf("expected ErrDuplicateRevenueRecord, got %v", err)
	}

	created.OnSiteRevenue = 25000
	created.TotalRevenue = 25000
	created.NetIncome = 25000
	created.Version = 2
	updated, err := s.UpdateRevenue(ctx, *created)
	if err != nil {
		t.Fatalf("update revenue: %v", err)
	}
	if updated.TotalRevenue != 25000 || updated.Version != 2 || updated.UpdatedAt == nil {
		t.Fatalf("unexpected updated record: %+v", updated)
	}

	moved := *updated
	moved.StoreName = "Elsewhere"
	if _, err := s.UpdateRevenue(ctx, moved); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for identity change, got %v", err)
	}

	listed, err := s.ListRevenue(ctx, "2026-03-02", "2026-03-02", "Main")
	if err != nil {
		t.Fatalf("list revenue: %v", err)
	}
	var seen bool
	for _, r := range listed {
		if r.ID == created.ID {
			seen = true
		}
	}
	if !seen {
		t.Fatalf("expected record %s in listing", created.ID)
	}
}
