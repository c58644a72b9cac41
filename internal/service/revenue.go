package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/geofence"
	"shiftbook/backend/internal/store"
)

func (s *Service) SubmitRevenue(ctx context.Context, req domain.RevenueSubmitRequest) (domain.RevenueRecord, error) {
	req.EmployeeID = sanitize(req.EmployeeID)
	req.BusinessDate = strings.TrimSpace(req.BusinessDate)
	req.StoreName = sanitize(req.StoreName)
	req.BonusType = strings.ToLower(sanitize(req.BonusType))
	req.Notes = sanitize(req.Notes)
	if err := s.validate.Struct(req); err != nil {
		return domain.RevenueRecord{}, err
	}
	if _, ok := s.stores.LookupStore(req.StoreName); !ok {
		return domain.RevenueRecord{}, fmt.Errorf("%w: %s", geofence.ErrStoreNotFound, req.StoreName)
	}

	var created *domain.RevenueRecord
	err := s.withLock(ctx, s.scope.RevenueKey(req.EmployeeID, req.BusinessDate, req.StoreName), func() error {
		employee, err := s.activeEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}

		if _, err := s.repo.FindRevenue(ctx, employee.ID, req.BusinessDate, req.StoreName); err == nil {
			return store.ErrDuplicateRevenueRecord
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		record := domain.RevenueRecord{
			EmployeeID:      employee.ID,
			EmployeeName:    employee.Name,
			BusinessDate:    req.BusinessDate,
			StoreName:       req.StoreName,
			OrderCount:      req.OrderCount,
			OnSiteRevenue:   req.OnSiteRevenue,
			DeliveryRevenue: req.DeliveryRevenue,
			OtherRevenue:    req.OtherRevenue,
			MaterialExpense: req.MaterialExpense,
			OtherExpense:    req.OtherExpense,
			BonusType:       req.BonusType,
			Version:         1,
			SubmittedAt:     s.now().UTC(),
			Notes:           req.Notes,
		}
		if err := s.recompute(ctx, &record); err != nil {
			return err
		}

		created, err = s.repo.CreateRevenue(ctx, record)
		return err
	})
	if err != nil {
		return domain.RevenueRecord{}, err
	}

	record := *created
	s.logAudit(ctx, record.StoreName, "revenue_submit", "revenue", record.ID,
		fmt.Sprintf("employee=%s,date=%s,total=%d,net=%d,bonus=%d", record.EmployeeID, record.BusinessDate, record.TotalRevenue, record.NetIncome, record.ComputedBonus))
	s.log.Info("revenue submitted",
		zap.String("record_id", record.ID),
		zap.String("employee_id", record.EmployeeID),
		zap.String("store", record.StoreName),
		zap.Int64("total_revenue", record.TotalRevenue),
		zap.Int64("computed_bonus", record.ComputedBonus))

	s.notifyAsync("revenue", func(ctx context.Context) error {
		return s.notifier.SendRevenueNotification(ctx, revenueNotification("submitted", record))
	})
	return record, nil
}

// UpdateRevenue merges patch over the stored inputs and recomputes every derived field together.
func (s *Service) UpdateRevenue(ctx context.Context, id string, patch domain.RevenuePatch) (domain.RevenueRecord, error) {
	id = sanitize(id)
	if id == "" {
		return domain.RevenueRecord{}, fieldError("id", "is required")
	}
	if patch.BonusType != nil {
		bonusType := strings.ToLower(sanitize(*patch.BonusType))
		patch.BonusType = &bonusType
	}
	if patch.Notes != nil {
		notes := sanitize(*patch.Notes)
		patch.Notes = &notes
	}
	if err := s.validate.Struct(patch); err != nil {
		return domain.RevenueRecord{}, err
	}

	existing, err := s.repo.GetRevenueByID(ctx, id)
	if err != nil {
		return domain.RevenueRecord{}, err
	}

	var updated *domain.RevenueRecord
	err = s.withLock(ctx, s.scope.RevenueKey(existing.EmployeeID, existing.BusinessDate, existing.StoreName), func() error {
		current, err := s.repo.GetRevenueByID(ctx, id)
		if err != nil {
			return err
		}

		next := applyRevenuePatch(*current, patch)
		if err := s.recompute(ctx, &next); err != nil {
			return err
		}
		next.Version = current.Version + 1
		at := s.now().UTC()
		next.UpdatedAt = &at

		updated, err = s.repo.UpdateRevenue(ctx, next)
		return err
	})
	if err != nil {
		return domain.RevenueRecord{}, err
	}

	record := *updated
	s.logAudit(ctx, record.StoreName, "revenue_update", "revenue", record.ID,
		fmt.Sprintf("version=%d,total=%d,net=%d,bonus=%d", record.Version, record.TotalRevenue, record.NetIncome, record.ComputedBonus))
	s.log.Info("revenue updated",
		zap.String("record_id", record.ID),
		zap.Int("version", record.Version),
		zap.Int64("total_revenue", record.TotalRevenue))

	s.notifyAsync("revenue", func(ctx context.Context) error {
		return s.notifier.SendRevenueNotification(ctx, revenueNotification("updated", record))
	})
	return record, nil
}

func (s *Service) GetRevenue(ctx context.Context, id string) (domain.RevenueRecord, error) {
	record, err := s.repo.GetRevenueByID(ctx, sanitize(id))
	if err != nil {
		return domain.RevenueRecord{}, err
	}
	return *record, nil
}

func (s *Service) CalculateBonus(ctx context.Context, req domain.BonusPreviewRequest) domain.BonusResult {
	return s.bonus.Compute(ctx, req.TotalRevenue, strings.ToLower(sanitize(req.BonusType)), sanitize(req.EmployeeID))
}

func (s *Service) BonusSettings(ctx context.Context) (domain.BonusSettings, error) {
	positions, err := s.repo.ListPositions(ctx)
	if err != nil {
		return domain.BonusSettings{}, err
	}
	return domain.BonusSettings{Rules: s.bonus.Rules(), Positions: positions}, nil
}

// DailyRevenueStats aggregates one business date; an empty date means today.
func (s *Service) DailyRevenueStats(ctx context.Context, date string, storeName string) (domain.DailyRevenueStats, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.Today()
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return domain.DailyRevenueStats{}, fieldError("date", "must be a date in YYYY-MM-DD format")
	}
	storeName = sanitize(storeName)

	records, err := s.repo.ListRevenue(ctx, date, date, storeName)
	if err != nil {
		return domain.DailyRevenueStats{}, err
	}

	stats := domain.DailyRevenueStats{Date: date, StoreName: storeName}
	byStore := map[string]*domain.StoreRevenueSummary{}
	for _, r := range records {
		addTotals(&stats.Totals, r)
		sum, ok := byStore[r.StoreName]
		if !ok {
			sum = &domain.StoreRevenueSummary{StoreName: r.StoreName}
			byStore[r.StoreName] = sum
		}
		addTotals(&sum.RevenueTotals, r)
	}
	stats.ByStore = sortedStores(byStore)
	return stats, nil
}

// MonthlyRevenueStats aggregates a calendar month; zero year or month means the current one.
func (s *Service) MonthlyRevenueStats(ctx context.Context, year int, month int, storeName string) (domain.MonthlyRevenueStats, error) {
	now := s.now().In(s.loc)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return domain.MonthlyRevenueStats{}, fieldError("month", "must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		return domain.MonthlyRevenueStats{}, fieldError("year", "must be between 2000 and 9999")
	}
	storeName = sanitize(storeName)

	from, to := monthBounds(year, time.Month(month))
	records, err := s.repo.ListRevenue(ctx, from, to, storeName)
	if err != nil {
		return domain.MonthlyRevenueStats{}, err
	}

	stats := domain.MonthlyRevenueStats{Year: year, Month: month, StoreName: storeName}
	byStore := map[string]*domain.StoreRevenueSummary{}
	byDay := map[string]*domain.DayRevenueSummary{}
	byEmployee := map[string]*domain.EmployeeRevenueSummary{}
	for _, r := range records {
		addTotals(&stats.Totals, r)

		st, ok := byStore[r.StoreName]
		if !ok {
			st = &domain.StoreRevenueSummary{StoreName: r.StoreName}
			byStore[r.StoreName] = st
		}
		addTotals(&st.RevenueTotals, r)

		day, ok := byDay[r.BusinessDate]
		if !ok {
			day = &domain.DayRevenueSummary{Date: r.BusinessDate}
			byDay[r.BusinessDate] = day
		}
		addTotals(&day.RevenueTotals, r)

		emp, ok := byEmployee[r.EmployeeID]
		if !ok {
			emp = &domain.EmployeeRevenueSummary{EmployeeID: r.EmployeeID, EmployeeName: r.EmployeeName}
			byEmployee[r.EmployeeID] = emp
		}
		addTotals(&emp.RevenueTotals, r)
	}

	stats.ByStore = sortedStores(byStore)

	stats.ByDay = make([]domain.DayRevenueSummary, 0, len(byDay))
	for _, d := range byDay {
		stats.ByDay = append(stats.ByDay, *d)
	}
	sort.Slice(stats.ByDay, func(i, j int) bool {
		return stats.ByDay[i].Date < stats.ByDay[j].Date
	})

	employees := make([]domain.EmployeeRevenueSummary, 0, len(byEmployee))
	for _, e := range byEmployee {
		employees = append(employees, *e)
	}
	sort.Slice(employees, func(i, j int) bool {
		if employees[i].TotalRevenue != employees[j].TotalRevenue {
			return employees[i].TotalRevenue > employees[j].TotalRevenue
		}
		return employees[i].EmployeeID < employees[j].EmployeeID
	})
	if len(employees) > s.topEmployees {
		employees = employees[:s.topEmployees]
	}
	stats.TopEmployees = employees
	return stats, nil
}

// SendDailySummary pushes the stats for date through the notifier and returns them.
func (s *Service) SendDailySummary(ctx context.Context, date string) (domain.DailyRevenueStats, error) {
	stats, err := s.DailyRevenueStats(ctx, date, "")
	if err != nil {
		return domain.DailyRevenueStats{}, err
	}
	if err := s.notifier.SendDailySummary(ctx, stats); err != nil {
		return stats, fmt.Errorf("send daily summary: %w", err)
	}
	return stats, nil
}

func (s *Service) recompute(ctx context.Context, r *domain.RevenueRecord) error {
	r.TotalRevenue = r.OnSiteRevenue + r.DeliveryRevenue + r.OtherRevenue
	r.TotalExpense = r.MaterialExpense + r.OtherExpense
	r.NetIncome = r.TotalRevenue - r.TotalExpense
	r.AverageOrderValue = averageOrderValue(r.TotalRevenue, r.OrderCount)

	result := s.bonus.Compute(ctx, r.TotalRevenue, r.BonusType, r.EmployeeID)
	if !result.Success {
		return fmt.Errorf("compute bonus: %s", result.Message)
	}
	r.ComputedBonus = result.Bonus
	return nil
}

func applyRevenuePatch(r domain.RevenueRecord, patch domain.RevenuePatch) domain.RevenueRecord {
	if patch.OrderCount != nil {
		r.OrderCount = *patch.OrderCount
	}
	if patch.OnSiteRevenue != nil {
		r.OnSiteRevenue = *patch.OnSiteRevenue
	}
	if patch.DeliveryRevenue != nil {
		r.DeliveryRevenue = *patch.DeliveryRevenue
	}
	if patch.OtherRevenue != nil {
		r.OtherRevenue = *patch.OtherRevenue
	}
	if patch.MaterialExpense != nil {
		r.MaterialExpense = *patch.MaterialExpense
	}
	if patch.OtherExpense != nil {
		r.OtherExpense = *patch.OtherExpense
	}
	if patch.BonusType != nil {
		r.BonusType = *patch.BonusType
	}
	if patch.Notes != nil {
		r.Notes = *patch.Notes
	}
	return r
}

func averageOrderValue(total int64, orders int) float64 {
	if orders < 1 {
		return 0
	}
	return decimal.NewFromInt(total).
		DivRound(decimal.NewFromInt(int64(orders)), 2).
		InexactFloat64()
}

func addTotals(t *domain.RevenueTotals, r domain.RevenueRecord) {
	t.Records++
	t.OrderCount += r.OrderCount
	t.TotalRevenue += r.TotalRevenue
	t.TotalExpense += r.TotalExpense
	t.NetIncome += r.NetIncome
	t.TotalBonus += r.ComputedBonus
}

func sortedStores(byStore map[string]*domain.StoreRevenueSummary) []domain.StoreRevenueSummary {
	out := make([]domain.StoreRevenueSummary, 0, len(byStore))
	for _, st := range byStore {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StoreName < out[j].StoreName
	})
	return out
}

func revenueNotification(action string, r domain.RevenueRecord) domain.RevenueNotification {
	return domain.RevenueNotification{
		Action:        action,
		RecordID:      r.ID,
		EmployeeName:  r.EmployeeName,
		StoreName:     r.StoreName,
		BusinessDate:  r.BusinessDate,
		TotalRevenue:  r.TotalRevenue,
		NetIncome:     r.NetIncome,
		ComputedBonus: r.ComputedBonus,
	}
}
