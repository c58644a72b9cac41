package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shiftbook/backend/internal/domain"
)

func TestTelegramSendAttendance(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BaseURL: srv.URL, BotToken: "123:abc", ChatID: "-100"})
	err := tg.SendAttendanceNotification(context.Background(), domain.AttendanceNotification{
		Type:           domain.ClockTypeIn,
		EmployeeID:     "E001",
		EmployeeName:   "Lin Mei",
		StoreName:      "Main",
		Timestamp:      time.Date(2026, 3, 2, 1, 5, 0, 0, time.UTC),
		LateMinutes:    5,
		DistanceMeters: 12.5,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["chat_id"] != "-100" {
		t.Fatalf("unexpected chat id %v", gotBody["chat_id"])
	}
	text, _ := gotBody["text"].(string)
	if !strings.Contains(text, "Late: 5 min") || !strings.Contains(text, "Lin Mei (E001)") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(TelegramConfig{BaseURL: srv.URL, BotToken: "t", ChatID: "x"})
	err := tg.SendRevenueNotification(context.Background(), domain.RevenueNotification{Action: "submitted"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestFormatDailySummary(t *testing.T) {
	text := FormatDailySummary(domain.DailyRevenueStats{
		Date:   "2026-03-02",
		Totals: domain.RevenueTotals{Records: 2, TotalRevenue: 30000, NetIncome: 25000},
		ByStore: []domain.StoreRevenueSummary{
			{StoreName: "Main", RevenueTotals: domain.RevenueTotals{TotalRevenue: 30000, NetIncome: 25000}},
		},
	})
	if !strings.Contains(text, "Daily summary 2026-03-02") || !strings.Contains(text, "- Main: revenue 30000, net 25000") {
		t.Fatalf("unexpected summary %q", text)
	}
}

func TestFormatClockOutShowsHours(t *testing.T) {
	text := FormatAttendance(domain.AttendanceNotification{Type: domain.ClockTypeOut, WorkHours: 8.5}, nil)
	if !strings.Contains(text, "Worked: 8.50 h") || strings.Contains(text, "Late:") {
		t.Fatalf("unexpected text %q", text)
	}
}
