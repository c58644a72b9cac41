package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/fingerprint"
	"shiftbook/backend/internal/geofence"
	"shiftbook/backend/internal/shifttime"
	"shiftbook/backend/internal/store"
)

func normalizeClockRequest(req domain.ClockRequest) domain.ClockRequest {
	req.EmployeeID = sanitize(req.EmployeeID)
	req.StoreName = sanitize(req.StoreName)
	req.GPSCoordinate = sanitize(req.GPSCoordinate)
	req.DeviceFingerprint = strings.TrimSpace(req.DeviceFingerprint)
	req.ShiftName = strings.ToLower(sanitize(req.ShiftName))
	req.Notes = sanitize(req.Notes)
	return req
}

// ClockIn records the first clock event of the employee's work date. Lateness is
// measured against the employee's shift, then the requested shift, then morning.
func (s *Service) ClockIn(ctx context.Context, req domain.ClockRequest) (domain.ClockResult, error) {
	req = normalizeClockRequest(req)
	if err := s.validate.Struct(req); err != nil {
		return domain.ClockResult{}, err
	}

	now := s.now().In(s.loc)
	workDate := now.Format(domain.DateLayout)

	var result domain.ClockResult
	var employee *domain.Employee
	err := s.withLock(ctx, s.scope.AttendanceKey(req.EmployeeID, workDate), func() error {
		var err error
		employee, err = s.activeEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}

		if _, err := s.repo.FindAttendance(ctx, employee.ID, workDate, domain.ClockTypeIn); err == nil {
			return store.ErrDuplicateClockIn
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		fence, err := s.checkGeofence(req.GPSCoordinate, req.StoreName)
		result.DistanceMeters = fence.DistanceMeters
		if err != nil {
			return err
		}

		shift, err := s.shiftFor(employee, req.ShiftName)
		if err != nil {
			return err
		}
		lateness, err := shifttime.ComputeLateness(now, shift.Start)
		if err != nil {
			return err
		}

		analysis := s.analyzeDevice(ctx, employee.ID, req.DeviceFingerprint)

		record := domain.AttendanceRecord{
			EmployeeID:        employee.ID,
			EmployeeName:      employee.Name,
			WorkDate:          workDate,
			Timestamp:         now.UTC(),
			Type:              domain.ClockTypeIn,
			StoreName:         req.StoreName,
			GPSCoordinate:     req.GPSCoordinate,
			DistanceFromStore: fence.DistanceMeters,
			DeviceFingerprint: req.DeviceFingerprint,
			LateStatus:        domain.LateStatusNormal,
			DeviceAnomaly:     analysis.AnomalyTag,
			Notes:             req.Notes,
		}
		if lateness.IsLate {
			record.LateStatus = domain.LateStatusLate
			record.LateMinutes = lateness.LateMinutes
		}

		created, err := s.repo.AppendAttendance(ctx, record)
		if err != nil {
			return err
		}

		result.Record = *created
		result.IsLate = lateness.IsLate
		result.LateMinutes = lateness.LateMinutes
		return nil
	})
	if err != nil {
		return result, err
	}

	from, to := monthBounds(now.Year(), now.Month())
	if _, minutes, err := s.repo.SumLateMinutes(ctx, employee.ID, from, to); err != nil {
		s.log.Warn("monthly late minutes unavailable", zap.String("employee_id", employee.ID), zap.Error(err))
	} else {
		result.MonthlyLateMinutes = minutes
	}

	record := result.Record
	s.logAudit(ctx, record.StoreName, "clock_in", "attendance", record.ID,
		fmt.Sprintf("employee=%s,late_minutes=%d,distance=%.2f,anomaly=%s", record.EmployeeID, record.LateMinutes, record.DistanceFromStore, record.DeviceAnomaly))
	s.log.Info("clock in recorded",
		zap.String("employee_id", record.EmployeeID),
		zap.String("store", record.StoreName),
		zap.Int("late_minutes", record.LateMinutes),
		zap.String("device_anomaly", record.DeviceAnomaly))

	s.notifyAsync("attendance", func(ctx context.Context) error {
		return s.notifier.SendAttendanceNotification(ctx, attendanceNotification(record))
	})
	return result, nil
}

// ClockOut records the closing clock event for today's work date and the elapsed hours.
func (s *Service) ClockOut(ctx context.Context, req domain.ClockRequest) (domain.ClockResult, error) {
	req = normalizeClockRequest(req)
	if err := s.validate.Struct(req); err != nil {
		return domain.ClockResult{}, err
	}

	now := s.now().In(s.loc)
	workDate := now.Format(domain.DateLayout)

	var result domain.ClockResult
	err := s.withLock(ctx, s.scope.AttendanceKey(req.EmployeeID, workDate), func() error {
		employee, err := s.activeEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}

		clockIn, err := s.repo.FindAttendance(ctx, employee.ID, workDate, domain.ClockTypeIn)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.ErrMissingClockIn
			}
			return err
		}
		if _, err := s.repo.FindAttendance(ctx, employee.ID, workDate, domain.ClockTypeOut); err == nil {
			return store.ErrDuplicateClockOut
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		fence, err := s.checkGeofence(req.GPSCoordinate, req.StoreName)
		result.DistanceMeters = fence.DistanceMeters
		if err != nil {
			return err
		}

		hours := shifttime.WorkHours(clockIn.Timestamp, now)
		if hours < 0 {
			return ErrInvalidClockOrder
		}

		analysis := s.analyzeDevice(ctx, employee.ID, req.DeviceFingerprint)

		created, err := s.repo.AppendAttendance(ctx, domain.AttendanceRecord{
			EmployeeID:        employee.ID,
			EmployeeName:      employee.Name,
			WorkDate:          workDate,
			Timestamp:         now.UTC(),
			Type:              domain.ClockTypeOut,
			StoreName:         req.StoreName,
			GPSCoordinate:     req.GPSCoordinate,
			DistanceFromStore: fence.DistanceMeters,
			DeviceFingerprint: req.DeviceFingerprint,
			LateStatus:        domain.LateStatusNormal,
			WorkHours:         shifttime.RoundHours(hours),
			DeviceAnomaly:     analysis.AnomalyTag,
			Notes:             req.Notes,
		})
		if err != nil {
			return err
		}

		result.Record = *created
		result.WorkHours = created.WorkHours
		return nil
	})
	if err != nil {
		return result, err
	}

	record := result.Record
	s.logAudit(ctx, record.StoreName, "clock_out", "attendance", record.ID,
		fmt.Sprintf("employee=%s,work_hours=%.2f,distance=%.2f,anomaly=%s", record.EmployeeID, record.WorkHours, record.DistanceFromStore, record.DeviceAnomaly))
	s.log.Info("clock out recorded",
		zap.String("employee_id", record.EmployeeID),
		zap.String("store", record.StoreName),
		zap.Float64("work_hours", record.WorkHours))

	s.notifyAsync("attendance", func(ctx context.Context) error {
		return s.notifier.SendAttendanceNotification(ctx, attendanceNotification(record))
	})
	return result, nil
}

func (s *Service) AttendanceHistory(ctx context.Context, query domain.AttendanceHistoryQuery) (domain.AttendanceHistory, error) {
	query.EmployeeID = sanitize(query.EmployeeID)
	query.From = strings.TrimSpace(query.From)
	query.To = strings.TrimSpace(query.To)
	if err := s.validate.Struct(query); err != nil {
		return domain.AttendanceHistory{}, err
	}
	if query.From != "" && query.To != "" && query.From > query.To {
		return domain.AttendanceHistory{}, fieldError("from", "must not be after to")
	}
	if query.Limit < 1 {
		query.Limit = defaultHistoryLimit
	}

	if _, err := s.repo.GetEmployeeByID(ctx, query.EmployeeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AttendanceHistory{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, query.EmployeeID)
		}
		return domain.AttendanceHistory{}, err
	}

	records, err := s.repo.ListAttendance(ctx, query.EmployeeID, query.From, query.To, query.Limit)
	if err != nil {
		return domain.AttendanceHistory{}, err
	}
	return domain.AttendanceHistory{EmployeeID: query.EmployeeID, Records: records}, nil
}

// TodayStatus reports where the employee is in today's clock-in/clock-out sequence.
func (s *Service) TodayStatus(ctx context.Context, employeeID string) (domain.TodayStatus, error) {
	employeeID = sanitize(employeeID)
	if employeeID == "" {
		return domain.TodayStatus{}, fieldError("employee_id", "is required")
	}
	if _, err := s.repo.GetEmployeeByID(ctx, employeeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TodayStatus{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
		}
		return domain.TodayStatus{}, err
	}

	status := domain.TodayStatus{EmployeeID: employeeID, Date: s.Today(), State: domain.DayStateNone}

	in, err := s.repo.FindAttendance(ctx, employeeID, status.Date, domain.ClockTypeIn)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.TodayStatus{}, err
	}
	if in != nil {
		status.ClockIn = in
		status.State = domain.DayStateClockedIn
	}

	out, err := s.repo.FindAttendance(ctx, employeeID, status.Date, domain.ClockTypeOut)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.TodayStatus{}, err
	}
	if out != nil {
		status.ClockOut = out
		status.State = domain.DayStateClockedOut
	}
	return status, nil
}

// MonthlyLateMinutes sums lateness for a calendar month; a zero year or month means the current one.
func (s *Service) MonthlyLateMinutes(ctx context.Context, employeeID string, year int, month int) (domain.MonthlyLateSummary, error) {
	employeeID = sanitize(employeeID)
	if employeeID == "" {
		return domain.MonthlyLateSummary{}, fieldError("employee_id", "is required")
	}
	now := s.now().In(s.loc)
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return domain.MonthlyLateSummary{}, fieldError("month", "must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		return domain.MonthlyLateSummary{}, fieldError("year", "must be between 2000 and 9999")
	}

	if _, err := s.repo.GetEmployeeByID(ctx, employeeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MonthlyLateSummary{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
		}
		return domain.MonthlyLateSummary{}, err
	}

	from, to := monthBounds(year, time.Month(month))
	days, minutes, err := s.repo.SumLateMinutes(ctx, employeeID, from, to)
	if err != nil {
		return domain.MonthlyLateSummary{}, err
	}
	return domain.MonthlyLateSummary{
		EmployeeID:  employeeID,
		Year:        year,
		Month:       month,
		LateDays:    days,
		LateMinutes: minutes,
	}, nil
}

func (s *Service) checkGeofence(coordinate string, storeName string) (geofence.Result, error) {
	result, err := s.geofence.Validate(coordinate, storeName)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, geofence.ErrOutOfRange) {
		return result, fmt.Errorf("%w: %s", err, result.Reason)
	}
	return result, err
}

func (s *Service) shiftFor(employee *domain.Employee, requested string) (domain.ShiftConfig, error) {
	name := strings.ToLower(strings.TrimSpace(employee.ShiftName))
	if name == "" {
		name = requested
	}
	if name == "" {
		name = defaultShiftName
	}
	shift, ok := s.shifts[name]
	if !ok {
		return domain.ShiftConfig{}, fieldError("shift_name", "unknown shift "+name)
	}
	return shift, nil
}

// analyzeDevice is advisory: a history lookup failure is logged and the
// fingerprint is compared against an empty history.
func (s *Service) analyzeDevice(ctx context.Context, employeeID string, current string) fingerprint.Analysis {
	history, err := s.repo.RecentFingerprints(ctx, employeeID, fingerprint.HistoryLimit)
	if err != nil {
		s.log.Warn("fingerprint history unavailable", zap.String("employee_id", employeeID), zap.Error(err))
		history = nil
	}
	return s.fingerprints.Analyze(current, history)
}

func attendanceNotification(record domain.AttendanceRecord) domain.AttendanceNotification {
	return domain.AttendanceNotification{
		Type:           record.Type,
		EmployeeID:     record.EmployeeID,
		EmployeeName:   record.EmployeeName,
		StoreName:      record.StoreName,
		Timestamp:      record.Timestamp,
		LateMinutes:    record.LateMinutes,
		WorkHours:      record.WorkHours,
		DistanceMeters: record.DistanceFromStore,
		DeviceAnomaly:  record.DeviceAnomaly,
	}
}

// monthBounds returns the first and last work dates of a calendar month.
func monthBounds(year int, month time.Month) (string, string) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format(domain.DateLayout), last.Format(domain.DateLayout)
}
