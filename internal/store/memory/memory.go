package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
	"shiftbook/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	employees          map[string]domain.Employee
	positions          map[string]domain.Position
	attendance         []domain.AttendanceRecord
	attendanceByDay    map[string]map[string]int
	attendanceByWorker map[string][]int
	revenueByID        map[string]domain.RevenueRecord
	revenueByKey       map[string]string
	revenueOrder       []string
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		employees:          make(map[string]domain.Employee),
		positions:          make(map[string]domain.Position),
		attendance:         make([]domain.AttendanceRecord, 0, 256),
		attendanceByDay:    make(map[string]map[string]int),
		attendanceByWorker: make(map[string][]int),
		revenueByID:        make(map[string]domain.RevenueRecord),
		revenueByKey:       make(map[string]string),
		revenueOrder:       make([]string, 0, 128),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from SEED_MANAGER_PASSWORD and
// SEED_EMPLOYEE_PASSWORD; when unset, dev defaults are used and a warning is printed.
func seedUsers() map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_EMPLOYEE_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username   string
		password   string
		role       string
		employeeID string
	}{
		{"manager", managerPwd, domain.RoleManager, "E002"},
		{"lin", employeePwd, domain.RoleEmployee, "E001"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:   u.username,
			Password:   string(hash),
			Role:       u.role,
			EmployeeID: u.employeeID,
			Active:     true,
			CreatedAt:  now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	for _, e := range []domain.Employee{
		{ID: "E001", Name: "Lin Mei", Status: domain.EmployeeStatusActive, Position: "staff"},
		{ID: "E002", Name: "Chen Wei", Status: domain.EmployeeStatusActive, Position: "store_manager"},
		{ID: "E003", Name: "Wang Hao", Status: domain.EmployeeStatusActive, Position: "part_time", ShiftName: "evening"},
		{ID: "E004", Name: "Huang Yu", Status: domain.EmployeeStatusInactive, Position: "staff"},
	} {
		s.employees[e.ID] = e
	}
	for _, p := range []domain.Position{
		{Name: "staff", BonusMultiplier: 1.0},
		{Name: "store_manager", BonusMultiplier: 1.2},
		{Name: "part_time", BonusMultiplier: 0.8},
	} {
		s.positions[p.Name] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) PutEmployee(employee domain.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[employee.ID] = employee
}

func (s *Store) PutPosition(position domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[position.Name] = position
}

func (s *Store) GetEmployeeByID(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, exists := s.employees[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEmployee := employee
	return &copyEmployee, nil
}

func (s *Store) GetPosition(_ context.Context, name string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	position, exists := s.positions[name]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyPosition := position
	return &copyPosition, nil
}

func (s *Store) ListPositions(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, p)
	}
	slices.SortFunc(positions, func(a, b domain.Position) int {
		return cmpString(a.Name, b.Name)
	})
	return positions, nil
}

func (s *Store) AppendAttendance(_ context.Context, record domain.AttendanceRecord) (*domain.AttendanceRecord, error) {
	if strings.TrimSpace(record.EmployeeID) == "" || strings.TrimSpace(record.WorkDate) == "" {
		return nil, store.ErrInvalidRecord
	}
	if record.Type != domain.ClockTypeIn && record.Type != domain.ClockTypeOut {
		return nil, store.ErrInvalidRecord
	}
	if record.DistanceFromStore < 0 || record.LateMinutes < 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey(record.EmployeeID, record.WorkDate)
	day := s.attendanceByDay[key]
	switch record.Type {
	case domain.ClockTypeIn:
		if _, exists := day[domain.ClockTypeIn]; exists {
			return nil, store.ErrDuplicateClockIn
		}
	case domain.ClockTypeOut:
		if _, exists := day[domain.ClockTypeIn]; !exists {
			return nil, store.ErrMissingClockIn
		}
		if _, exists := day[domain.ClockTypeOut]; exists {
			return nil, store.ErrDuplicateClockOut
		}
	}

	if record.ID == "" {
		record.ID = xid.New("att")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	if day == nil {
		day = make(map[string]int, 2)
		s.attendanceByDay[key] = day
	}

	idx := len(s.attendance)
	s.attendance = append(s.attendance, record)
	day[record.Type] = idx
	s.attendanceByWorker[record.EmployeeID] = append(s.attendanceByWorker[record.EmployeeID], idx)

	created := record
	return &created, nil
}

func (s *Store) FindAttendance(_ context.Context, employeeID string, workDate string, clockType string) (*domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, exists := s.attendanceByDay[dayKey(employeeID, workDate)][clockType]
	if !exists {
		return nil, store.ErrNotFound
	}
	record := s.attendance[idx]
	return &record, nil
}

func (s *Store) ListAttendance(_ context.Context, employeeID string, from string, to string, limit int) ([]domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indexes := s.attendanceByWorker[employeeID]
	result := make([]domain.AttendanceRecord, 0, min(len(indexes), 64))
	for i := len(indexes) - 1; i >= 0; i-- {
		record := s.attendance[indexes[i]]
		if !inDateRange(record.WorkDate, from, to) {
			continue
		}
		result = append(result, record)
	}

	slices.SortStableFunc(result, func(a, b domain.AttendanceRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) RecentFingerprints(_ context.Context, employeeID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indexes := s.attendanceByWorker[employeeID]
	result := make([]string, 0, min(len(indexes), max(limit, 0)))
	for i := len(indexes) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		fp := s.attendance[indexes[i]].DeviceFingerprint
		if fp == "" {
			continue
		}
		result = append(result, fp)
	}
	return result, nil
}

func (s *Store) SumLateMinutes(_ context.Context, employeeID string, from string, to string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lateDays, lateMinutes := 0, 0
	for _, idx := range s.attendanceByWorker[employeeID] {
		record := s.attendance[idx]
		if record.Type != domain.ClockTypeIn || !inDateRange(record.WorkDate, from, to) {
			continue
		}
		if record.LateMinutes > 0 {
			lateDays++
			lateMinutes += record.LateMinutes
		}
	}
	return lateDays, lateMinutes, nil
}

func (s *Store) CreateRevenue(_ context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error) {
	if strings.TrimSpace(record.EmployeeID) == "" || strings.TrimSpace(record.BusinessDate) == "" || strings.TrimSpace(record.StoreName) == "" {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := revenueKey(record.EmployeeID, record.BusinessDate, record.StoreName)
	if _, exists := s.revenueByKey[key]; exists {
		return nil, store.ErrDuplicateRevenueRecord
	}
	if record.ID == "" {
		record.ID = xid.New("rev")
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now().UTC()
	}
	if record.Version < 1 {
		record.Version = 1
	}

	s.revenueByID[record.ID] = record
	s.revenueByKey[key] = record.ID
	s.revenueOrder = append(s.revenueOrder, record.ID)
	created := record
	return &created, nil
}

func (s *Store) GetRevenueByID(_ context.Context, id string) (*domain.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.revenueByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (s *Store) FindRevenue(_ context.Context, employeeID string, businessDate string, storeName string) (*domain.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.revenueByKey[revenueKey(employeeID, businessDate, storeName)]
	if !exists {
		return nil, store.ErrNotFound
	}
	record := s.revenueByID[id]
	return &record, nil
}

// UpdateRevenue replaces the stored record; identity fields (employee, date, store) are immutable.
func (s *Store) UpdateRevenue(_ context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.revenueByID[record.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if existing.EmployeeID != record.EmployeeID || existing.BusinessDate != record.BusinessDate || existing.StoreName != record.StoreName {
		return nil, store.ErrInvalidRecord
	}
	record.SubmittedAt = existing.SubmittedAt
	s.revenueByID[record.ID] = record
	updated := record
	return &updated, nil
}

func (s *Store) ListRevenue(_ context.Context, from string, to string, storeName string) ([]domain.RevenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RevenueRecord, 0, 64)
	for _, id := range s.revenueOrder {
		record := s.revenueByID[id]
		if storeName != "" && record.StoreName != storeName {
			continue
		}
		if !inDateRange(record.BusinessDate, from, to) {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRecord
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func dayKey(employeeID string, workDate string) string {
	return employeeID + "|" + workDate
}

func revenueKey(employeeID string, businessDate string, storeName string) string {
	return employeeID + "|" + businessDate + "|" + storeName
}

func inDateRange(date string, from string, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
