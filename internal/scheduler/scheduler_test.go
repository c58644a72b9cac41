package scheduler

import (
	"context"
	"testing"
	"time"

	"shiftbook/backend/internal/domain"
)

type recordingSender struct {
	dates []string
}

func (r *recordingSender) SendDailySummary(_ context.Context, date string) (domain.DailyRevenueStats, error) {
	r.dates = append(r.dates, date)
	return domain.DailyRevenueStats{Date: date}, nil
}

func TestRunDailySummaryUsesPreviousBusinessDate(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	sender := &recordingSender{}
	s := New("0 22 * * *", loc, sender, nil)
	s.now = func() time.Time {
		// 2026-03-01 17:30 UTC is already 2026-03-02 01:30 in CST.
		return time.Date(2026, 3, 1, 17, 30, 0, 0, time.UTC)
	}

	stats, err := s.RunDailySummary(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Date != "2026-03-01" || len(sender.dates) != 1 {
		t.Fatalf("expected summary for 2026-03-01, got %q (%v)", stats.Date, sender.dates)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New("every day", time.UTC, &recordingSender{}, nil)
	if err := s.Start(); err == nil {
		t.Fatalf("expected error for malformed schedule")
	}
}

func TestStartStop(t *testing.T) {
	s := New("0 22 * * *", time.UTC, &recordingSender{}, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
}
