package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
	"shiftbook/backend/internal/xid"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	name             text PRIMARY KEY,
	bonus_multiplier double precision NOT NULL DEFAULT 1.0
);

CREATE TABLE IF NOT EXISTS employees (
	id         text PRIMARY KEY,
	name       text NOT NULL,
	status     text NOT NULL DEFAULT 'active',
	position   text NOT NULL DEFAULT '',
	shift_name text NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id                  text PRIMARY KEY,
	employee_id         text NOT NULL,
	employee_name       text NOT NULL,
	work_date           date NOT NULL,
	recorded_at         timestamptz NOT NULL,
	type                text NOT NULL,
	store_name          text NOT NULL,
	gps_coordinate      text NOT NULL,
	distance_from_store double precision NOT NULL CHECK (distance_from_store >= 0),
	device_fingerprint  text NOT NULL DEFAULT '',
	late_status         text NOT NULL,
	late_minutes        integer NOT NULL DEFAULT 0 CHECK (late_minutes >= 0),
	work_hours          double precision NOT NULL DEFAULT 0,
	device_anomaly      text NOT NULL DEFAULT '',
	notes               text NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS attendance_records_employee_day_type
	ON attendance_records (employee_id, work_date, type);

CREATE TABLE IF NOT EXISTS revenue_records (
	id                  text PRIMARY KEY,
	employee_id         text NOT NULL,
	employee_name       text NOT NULL,
	business_date       date NOT NULL,
	store_name          text NOT NULL,
	order_count         integer NOT NULL DEFAULT 0,
	on_site_revenue     bigint NOT NULL DEFAULT 0,
	delivery_revenue    bigint NOT NULL DEFAULT 0,
	other_revenue       bigint NOT NULL DEFAULT 0,
	total_revenue       bigint NOT NULL DEFAULT 0,
	material_expense    bigint NOT NULL DEFAULT 0,
	other_expense       bigint NOT NULL DEFAULT 0,
	total_expense       bigint NOT NULL DEFAULT 0,
	net_income          bigint NOT NULL DEFAULT 0,
	bonus_type          text NOT NULL,
	computed_bonus      bigint NOT NULL DEFAULT 0 CHECK (computed_bonus >= 0),
	average_order_value double precision NOT NULL DEFAULT 0,
	version             integer NOT NULL DEFAULT 1,
	submitted_at        timestamptz NOT NULL,
	updated_at          timestamptz,
	notes               text NOT NULL DEFAULT '',
	UNIQUE (employee_id, business_date, store_name)
);

CREATE INDEX IF NOT EXISTS revenue_records_business_date ON revenue_records (business_date, store_name);

CREATE TABLE IF NOT EXISTS audit_logs (
	id             text PRIMARY KEY,
	store_name     text NOT NULL DEFAULT '',
	actor_username text NOT NULL DEFAULT '',
	actor_role     text NOT NULL DEFAULT '',
	action         text NOT NULL,
	entity_type    text NOT NULL,
	entity_id      text NOT NULL,
	detail         text NOT NULL DEFAULT '',
	created_at     timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS user_accounts (
	username    text PRIMARY KEY,
	password    text NOT NULL,
	role        text NOT NULL,
	employee_id text NOT NULL DEFAULT '',
	active      boolean NOT NULL DEFAULT true,
	created_at  timestamptz NOT NULL
);
`

const attendanceColumns = `
	id, employee_id, employee_name, to_char(work_date, 'YYYY-MM-DD'), recorded_at, type, store_name,
	gps_coordinate, distance_from_store, device_fingerprint, late_status, late_minutes, work_hours,
	device_anomaly, notes`

const revenueColumns = `
	id, employee_id, employee_name, to_char(business_date, 'YYYY-MM-DD'), store_name, order_count,
	on_site_revenue, delivery_revenue, other_revenue, total_revenue, material_expense, other_expense,
	total_expense, net_income, bonus_type, computed_bonus, average_order_value, version,
	submitted_at, updated_at, notes`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error) {
	var e domain.Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, position, shift_name
		FROM employees
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Status, &e.Position, &e.ShiftName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetPosition(ctx context.Context, name string) (*domain.Position, error) {
	var p domain.Position
	err := s.db.QueryRowContext(ctx, `
		SELECT name, bonus_multiplier
		FROM positions
		WHERE name = $1
	`, name).Scan(&p.Name, &p.BonusMultiplier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, bonus_multiplier
		FROM positions
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make([]domain.Position, 0, 16)
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Name, &p.BonusMultiplier); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return positions, nil
}

func (s *Store) UpsertPosition(ctx context.Context, position domain.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (name, bonus_multiplier)
		VALUES ($1, $2)
		ON CONFLICT (name)
		DO UPDATE SET bonus_multiplier = EXCLUDED.bonus_multiplier
	`, position.Name, position.BonusMultiplier)
	return err
}

func (s *Store) UpsertEmployee(ctx context.Context, employee domain.Employee) error {
	if strings.TrimSpace(employee.ID) == "" {
		return store.ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, status, position, shift_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status,
		              position = EXCLUDED.position, shift_name = EXCLUDED.shift_name
	`, employee.ID, employee.Name, employee.Status, employee.Position, employee.ShiftName)
	return err
}

func (s *Store) AppendAttendance(ctx context.Context, record domain.AttendanceRecord) (*domain.AttendanceRecord, error) {
	if strings.TrimSpace(record.EmployeeID) == "" || strings.TrimSpace(record.WorkDate) == "" {
		return nil, store.ErrInvalidRecord
	}
	if record.Type != domain.ClockTypeIn && record.Type != domain.ClockTypeOut {
		return nil, store.ErrInvalidRecord
	}
	if record.DistanceFromStore < 0 || record.LateMinutes < 0 {
		return nil, store.ErrInvalidRecord
	}
	if record.ID == "" {
		record.ID = xid.New("att")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if record.Type == domain.ClockTypeOut {
		var one int
		err := tx.QueryRowContext(ctx, `
			SELECT 1
			FROM attendance_records
			WHERE employee_id = $1 AND work_date = $2::date AND type = $3
		`, record.EmployeeID, record.WorkDate, domain.ClockTypeIn).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMissingClockIn
		}
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (
			id, employee_id, employee_name, work_date, recorded_at, type, store_name,
			gps_coordinate, distance_from_store, device_fingerprint, late_status, late_minutes,
			work_hours, device_anomaly, notes
		)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, record.ID, record.EmployeeID, record.EmployeeName, record.WorkDate, record.Timestamp.UTC(), record.Type,
		record.StoreName, record.GPSCoordinate, record.DistanceFromStore, record.DeviceFingerprint,
		record.LateStatus, record.LateMinutes, record.WorkHours, record.DeviceAnomaly, record.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			if record.Type == domain.ClockTypeIn {
				return nil, store.ErrDuplicateClockIn
			}
			return nil, store.ErrDuplicateClockOut
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := record
	return &created, nil
}

func (s *Store) FindAttendance(ctx context.Context, employeeID string, workDate string, clockType string) (*domain.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records
		WHERE employee_id = $1 AND work_date = $2::date AND type = $3
	`, employeeID, workDate, clockType)
	record, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) ListAttendance(ctx context.Context, employeeID string, from string, to string, limit int) ([]domain.AttendanceRecord, error) {
	if limit < 1 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance_records
		WHERE employee_id = $1
		  AND work_date >= COALESCE(NULLIF($2, '')::date, '-infinity'::date)
		  AND work_date <= COALESCE(NULLIF($3, '')::date, 'infinity'::date)
		ORDER BY recorded_at DESC
		LIMIT $4
	`, employeeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.AttendanceRecord, 0, 64)
	for rows.Next() {
		record, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) RecentFingerprints(ctx context.Context, employeeID string, limit int) ([]string, error) {
	if limit < 1 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_fingerprint
		FROM attendance_records
		WHERE employee_id = $1 AND device_fingerprint <> ''
		ORDER BY recorded_at DESC
		LIMIT $2
	`, employeeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]string, 0, limit)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		result = append(result, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SumLateMinutes(ctx context.Context, employeeID string, from string, to string) (int, int, error) {
	var lateDays, lateMinutes int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE late_minutes > 0), COALESCE(SUM(late_minutes), 0)
		FROM attendance_records
		WHERE employee_id = $1
		  AND type = $2
		  AND work_date >= COALESCE(NULLIF($3, '')::date, '-infinity'::date)
		  AND work_date <= COALESCE(NULLIF($4, '')::date, 'infinity'::date)
	`, employeeID, domain.ClockTypeIn, from, to).Scan(&lateDays, &lateMinutes)
	if err != nil {
		return 0, 0, err
	}
	return lateDays, lateMinutes, nil
}

func (s *Store) CreateRevenue(ctx context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error) {
	if strings.TrimSpace(record.EmployeeID) == "" || strings.TrimSpace(record.BusinessDate) == "" || strings.TrimSpace(record.StoreName) == "" {
		return nil, store.ErrInvalidRecord
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revenue_records (
			id, employee_id, employee_name, business_date, store_name, order_count,
			on_site_revenue, delivery_revenue, other_revenue, total_revenue,
			material_expense, other_expense, total_expense, net_income,
			bonus_type, computed_bonus, average_order_value, version, submitted_at, notes
		)
		VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, record.ID, record.EmployeeID, record.EmployeeName, record.BusinessDate, record.StoreName, record.OrderCount,
		record.OnSiteRevenue, record.DeliveryRevenue, record.OtherRevenue, record.TotalRevenue,
		record.MaterialExpense, record.OtherExpense, record.TotalExpense, record.NetIncome,
		record.BonusType, record.ComputedBonus, record.AverageOrderValue, record.Version, record.SubmittedAt.UTC(), record.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateRevenueRecord
		}
		return nil, err
	}

	created := record
	return &created, nil
}

func (s *Store) GetRevenueByID(ctx context.Context, id string) (*domain.RevenueRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+revenueColumns+`
		FROM revenue_records
		WHERE id = $1
	`, id)
	record, err := scanRevenue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) FindRevenue(ctx context.Context, employeeID string, businessDate string, storeName string) (*domain.RevenueRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+revenueColumns+`
		FROM revenue_records
		WHERE employee_id = $1 AND business_date = $2::date AND store_name = $3
	`, employeeID, businessDate, storeName)
	record, err := scanRevenue(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *Store) UpdateRevenue(ctx context.Context, record domain.RevenueRecord) (*domain.RevenueRecord, error) {
	updatedAt := time.Now().UTC()
	if record.UpdatedAt != nil {
		updatedAt = record.UpdatedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE revenue_records
		SET order_count = $5, on_site_revenue = $6, delivery_revenue = $7, other_revenue = $8,
		    total_revenue = $9, material_expense = $10, other_expense = $11, total_expense = $12,
		    net_income = $13, bonus_type = $14, computed_bonus = $15, average_order_value = $16,
		    version = $17, updated_at = $18, notes = $19
		WHERE id = $1 AND employee_id = $2 AND business_date = $3::date AND store_name = $4
	`, record.ID, record.EmployeeID, record.BusinessDate, record.StoreName,
		record.OrderCount, record.OnSiteRevenue, record.DeliveryRevenue, record.OtherRevenue,
		record.TotalRevenue, record.MaterialExpense, record.OtherExpense, record.TotalExpense,
		record.NetIncome, record.BonusType, record.ComputedBonus, record.AverageOrderValue,
		record.Version, updatedAt, record.Notes)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.GetRevenueByID(ctx, record.ID); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidRecord
	}
	return s.GetRevenueByID(ctx, record.ID)
}

func (s *Store) ListRevenue(ctx context.Context, from string, to string, storeName string) ([]domain.RevenueRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+revenueColumns+`
		FROM revenue_records
		WHERE business_date >= COALESCE(NULLIF($1, '')::date, '-infinity'::date)
		  AND business_date <= COALESCE(NULLIF($2, '')::date, 'infinity'::date)
		  AND ($3 = '' OR store_name = $3)
		ORDER BY submitted_at, id
	`, from, to, storeName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.RevenueRecord, 0, 64)
	for rows.Next() {
		record, err := scanRevenue(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_name, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreName, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_name, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreName, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_accounts (username, password, role, employee_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, username, user.Password, user.Role, user.EmployeeID, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, employee_id, active, created_at
		FROM user_accounts
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.EmployeeID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_accounts SET password = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (*domain.AttendanceRecord, error) {
	var r domain.AttendanceRecord
	err := row.Scan(&r.ID, &r.EmployeeID, &r.EmployeeName, &r.WorkDate, &r.Timestamp, &r.Type, &r.StoreName,
		&r.GPSCoordinate, &r.DistanceFromStore, &r.DeviceFingerprint, &r.LateStatus, &r.LateMinutes, &r.WorkHours,
		&r.DeviceAnomaly, &r.Notes)
	if err != nil {
		return nil, err
	}
	r.Timestamp = r.Timestamp.UTC()
	return &r, nil
}

func scanRevenue(row rowScanner) (*domain.RevenueRecord, error) {
	var r domain.RevenueRecord
	var updatedAt sql.NullTime
	err := row.Scan(&r.ID, &r.EmployeeID, &r.EmployeeName, &r.BusinessDate, &r.StoreName, &r.OrderCount,
		&r.OnSiteRevenue, &r.DeliveryRevenue, &r.OtherRevenue, &r.TotalRevenue, &r.MaterialExpense, &r.OtherExpense,
		&r.TotalExpense, &r.NetIncome, &r.BonusType, &r.ComputedBonus, &r.AverageOrderValue, &r.Version,
		&r.SubmittedAt, &updatedAt, &r.Notes)
	if err != nil {
		return nil, err
	}
	r.SubmittedAt = r.SubmittedAt.UTC()
	if updatedAt.Valid {
		at := updatedAt.Time.UTC()
		r.UpdatedAt = &at
	}
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
