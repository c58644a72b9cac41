package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shiftbook/backend/internal/domain"
)

// Notifier delivers best-effort messages about ledger writes. Callers never fail
// a write because a notification could not be sent.
type Notifier interface {
	SendAttendanceNotification(ctx context.Context, n domain.AttendanceNotification) error
	SendRevenueNotification(ctx context.Context, n domain.RevenueNotification) error
	SendDailySummary(ctx context.Context, stats domain.DailyRevenueStats) error
}

type Noop struct{}

func (Noop) SendAttendanceNotification(context.Context, domain.AttendanceNotification) error {
	return nil
}

func (Noop) SendRevenueNotification(context.Context, domain.RevenueNotification) error {
	return nil
}

func (Noop) SendDailySummary(context.Context, domain.DailyRevenueStats) error {
	return nil
}

func FormatAttendance(n domain.AttendanceNotification, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	switch n.Type {
	case domain.ClockTypeIn:
		b.WriteString("Clock-in\n")
	case domain.ClockTypeOut:
		b.WriteString("Clock-out\n")
	default:
		b.WriteString("Attendance\n")
	}
	fmt.Fprintf(&b, "Employee: %s (%s)\n", n.EmployeeName, n.EmployeeID)
	fmt.Fprintf(&b, "Store: %s\n", n.StoreName)
	fmt.Fprintf(&b, "Time: %s\n", n.Timestamp.In(loc).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Distance: %.2f m\n", n.DistanceMeters)
	if n.Type == domain.ClockTypeIn && n.LateMinutes > 0 {
		fmt.Fprintf(&b, "Late: %d min\n", n.LateMinutes)
	}
	if n.Type == domain.ClockTypeOut {
		fmt.Fprintf(&b, "Worked: %.2f h\n", n.WorkHours)
	}
	if n.DeviceAnomaly != "" {
		fmt.Fprintf(&b, "Device: %s\n", n.DeviceAnomaly)
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatRevenue(n domain.RevenueNotification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Revenue %s\n", n.Action)
	fmt.Fprintf(&b, "Employee: %s\n", n.EmployeeName)
	fmt.Fprintf(&b, "Store: %s\n", n.StoreName)
	fmt.Fprintf(&b, "Date: %s\n", n.BusinessDate)
	fmt.Fprintf(&b, "Revenue: %d\n", n.TotalRevenue)
	fmt.Fprintf(&b, "Net: %d\n", n.NetIncome)
	fmt.Fprintf(&b, "Bonus: %d", n.ComputedBonus)
	return b.String()
}

func FormatDailySummary(stats domain.DailyRevenueStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily summary %s\n", stats.Date)
	fmt.Fprintf(&b, "Records: %d, orders: %d\n", stats.Totals.Records, stats.Totals.OrderCount)
	fmt.Fprintf(&b, "Revenue: %d, expense: %d, net: %d, bonus: %d",
		stats.Totals.TotalRevenue, stats.Totals.TotalExpense, stats.Totals.NetIncome, stats.Totals.TotalBonus)
	for _, s := range stats.ByStore {
		fmt.Fprintf(&b, "\n- %s: revenue %d, net %d", s.StoreName, s.TotalRevenue, s.NetIncome)
	}
	return b.String()
}
