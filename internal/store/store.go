package store

import (
	"context"
	"errors"
	"time"

	"shiftbook/backend/internal/domain"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidRecord          = errors.New("invalid record")
	ErrDuplicateClockIn       = errors.New("already clocked in today")
	ErrDuplicateClockOut      = errors.New("already clocked out today")
	ErrMissingClockIn         = errors.New("no clock-in recorded today")
	ErrDuplicateRevenueRecord = errors.New("revenue already submitted for this employee, date and store")
)

type Directory interface {
	GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error)
	GetPosition(ctx context.Context, name string) (*domain.Position, error)
	ListPositions(ctx context.Context) ([]domain.Position, error)
}

type AttendanceLedger interface {
	// AppendAttendance enforces one clock-in and one clock-out per employee per work date,
	// and rejects a clock-out with no clock-in for the same key.
	AppendAttendance(ctx context.Context, record domain.AttendanceRecord) (*domain.AttendanceRecord, error)
	FindAttendance(ctx context.Context, employeeID string, workDate string, clockType string) (*domain.AttendanceRecord, error)
	// ListAttendance returns records newest first; empty from/to are unbounded, inclusive dates.
	ListAttendance(ctx context.Context, employeeID string, from string, to string, limit int) ([]domain.AttendanceRecord, error)
	RecentFingerprints(ctx context.Context, employeeID string, limit int) ([]string, error)
	SumLateMinutes(ctx context.Context, employeeID string, from string, to string) (lateDays int, lateMinutes int, err error)
}

type RevenueLedger interface {
	CreateRevenue(ctx context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error)
	GetRevenueByID(ctx context.Context, id string) (*domain.RevenueRecord, error)
	FindRevenue(ctx context.Context, employeeID string, businessDate string, storeName string) (*domain.RevenueRecord, error)
	UpdateRevenue(ctx context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error)
	// ListRevenue returns records with from <= business_date <= to, optionally for one store.
	ListRevenue(ctx context.Context, from string, to string, storeName string) ([]domain.RevenueRecord, error)
}

type Repository interface {
	Directory
	AttendanceLedger
	RevenueLedger
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
