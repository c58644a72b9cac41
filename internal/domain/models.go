package domain

import "time"

type Employee struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Position  string `json:"position"`
	ShiftName string `json:"shift_name,omitempty"`
}

type Position struct {
	Name            string  `json:"name"`
	BonusMultiplier float64 `json:"bonus_multiplier"`
}

type Store struct {
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters,omitempty"`
}

type ShiftConfig struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type BonusRule struct {
	Threshold int64   `json:"threshold"`
	Rate      float64 `json:"rate"`
}

type AttendanceRecord struct {
	ID                string    `json:"id"`
	EmployeeID        string    `json:"employee_id"`
	EmployeeName      string    `json:"employee_name"`
	WorkDate          string    `json:"work_date"`
	Timestamp         time.Time `json:"timestamp"`
	Type              string    `json:"type"`
	StoreName         string    `json:"store_name"`
	GPSCoordinate     string    `json:"gps_coordinate"`
	DistanceFromStore float64   `json:"distance_from_store"`
	DeviceFingerprint string    `json:"device_fingerprint,omitempty"`
	LateStatus        string    `json:"late_status"`
	LateMinutes       int       `json:"late_minutes"`
	WorkHours         float64   `json:"work_hours,omitempty"`
	DeviceAnomaly     string    `json:"device_anomaly,omitempty"`
	Notes             string    `json:"notes,omitempty"`
}

type ClockRequest struct {
	EmployeeID        string `json:"employee_id" validate:"required,max=64"`
	StoreName         string `json:"store_name" validate:"required,max=100"`
	GPSCoordinate     string `json:"gps_coordinate" validate:"required,max=64"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty" validate:"max=4096"`
	ShiftName         string `json:"shift_name,omitempty" validate:"max=32"`
	Notes             string `json:"notes,omitempty" validate:"max=500"`
}

type ClockResult struct {
	Record             AttendanceRecord `json:"record"`
	IsLate             bool             `json:"is_late"`
	LateMinutes        int              `json:"late_minutes"`
	DistanceMeters     float64          `json:"distance_meters"`
	WorkHours          float64          `json:"work_hours,omitempty"`
	MonthlyLateMinutes int              `json:"monthly_late_minutes,omitempty"`
}

type AttendanceHistoryQuery struct {
	EmployeeID string `json:"employee_id" validate:"required,max=64"`
	From       string `json:"from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	To         string `json:"to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Limit      int    `json:"limit,omitempty" validate:"gte=0,lte=500"`
}

type AttendanceHistory struct {
	EmployeeID string             `json:"employee_id"`
	Records    []AttendanceRecord `json:"records"`
}

type TodayStatus struct {
	EmployeeID string            `json:"employee_id"`
	Date       string            `json:"date"`
	State      string            `json:"state"`
	ClockIn    *AttendanceRecord `json:"clock_in,omitempty"`
	ClockOut   *AttendanceRecord `json:"clock_out,omitempty"`
}

type MonthlyLateSummary struct {
	EmployeeID  string `json:"employee_id"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	LateDays    int    `json:"late_days"`
	LateMinutes int    `json:"late_minutes"`
}

type RevenueRecord struct {
	ID                string     `json:"id"`
	EmployeeID        string     `json:"employee_id"`
	EmployeeName      string     `json:"employee_name"`
	BusinessDate      string     `json:"business_date"`
	StoreName         string     `json:"store_name"`
	OrderCount        int        `json:"order_count"`
	OnSiteRevenue     int64      `json:"on_site_revenue"`
	DeliveryRevenue   int64      `json:"delivery_revenue"`
	OtherRevenue      int64      `json:"other_revenue"`
	TotalRevenue      int64      `json:"total_revenue"`
	MaterialExpense   int64      `json:"material_expense"`
	OtherExpense      int64      `json:"other_expense"`
	TotalExpense      int64      `json:"total_expense"`
	NetIncome         int64      `json:"net_income"`
	BonusType         string     `json:"bonus_type"`
	ComputedBonus     int64      `json:"computed_bonus"`
	AverageOrderValue float64    `json:"average_order_value"`
	Version           int        `json:"version"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

type RevenueSubmitRequest struct {
	EmployeeID      string `json:"employee_id" validate:"required,max=64"`
	BusinessDate    string `json:"business_date" validate:"required,datetime=2006-01-02"`
	StoreName       string `json:"store_name" validate:"required,max=100"`
	OrderCount      int    `json:"order_count" validate:"gte=0,lte=1000000"`
	OnSiteRevenue   int64  `json:"on_site_revenue" validate:"gte=0,lte=1000000000000"`
	DeliveryRevenue int64  `json:"delivery_revenue" validate:"gte=0,lte=1000000000000"`
	OtherRevenue    int64  `json:"other_revenue" validate:"gte=0,lte=1000000000000"`
	MaterialExpense int64  `json:"material_expense" validate:"gte=0,lte=1000000000000"`
	OtherExpense    int64  `json:"other_expense" validate:"gte=0,lte=1000000000000"`
	BonusType       string `json:"bonus_type" validate:"required,oneof=weekday holiday"`
	Notes           string `json:"notes,omitempty" validate:"max=500"`
}

type RevenuePatch struct {
	OrderCount      *int    `json:"order_count,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	OnSiteRevenue   *int64  `json:"on_site_revenue,omitempty" validate:"omitempty,gte=0,lte=1000000000000"`
	DeliveryRevenue *int64  `json:"delivery_revenue,omitempty" validate:"omitempty,gte=0,lte=1000000000000"`
	OtherRevenue    *int64  `json:"other_revenue,omitempty" validate:"omitempty,gte=0,lte=1000000000000"`
	MaterialExpense *int64  `json:"material_expense,omitempty" validate:"omitempty,gte=0,lte=1000000000000"`
	OtherExpense    *int64  `json:"other_expense,omitempty" validate:"omitempty,gte=0,lte=1000000000000"`
	BonusType       *string `json:"bonus_type,omitempty" validate:"omitempty,oneof=weekday holiday"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type BonusPreviewRequest struct {
	EmployeeID   string `json:"employee_id"`
	TotalRevenue int64  `json:"total_revenue"`
	BonusType    string `json:"bonus_type"`
}

type BonusResult struct {
	Success     bool    `json:"success"`
	Bonus       int64   `json:"bonus"`
	IsQualified bool    `json:"is_qualified"`
	Shortfall   int64   `json:"shortfall"`
	Threshold   int64   `json:"threshold"`
	Rate        float64 `json:"rate"`
	Multiplier  float64 `json:"multiplier"`
	Message     string  `json:"message,omitempty"`
}

type BonusSettings struct {
	Rules     map[string]BonusRule `json:"rules"`
	Positions []Position           `json:"positions"`
}

type RevenueTotals struct {
	Records      int   `json:"records"`
	OrderCount   int   `json:"order_count"`
	TotalRevenue int64 `json:"total_revenue"`
	TotalExpense int64 `json:"total_expense"`
	NetIncome    int64 `json:"net_income"`
	TotalBonus   int64 `json:"total_bonus"`
}

type StoreRevenueSummary struct {
	StoreName string `json:"store_name"`
	RevenueTotals
}

type DayRevenueSummary struct {
	Date string `json:"date"`
	RevenueTotals
}

type EmployeeRevenueSummary struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	RevenueTotals
}

type DailyRevenueStats struct {
	Date      string                `json:"date"`
	StoreName string                `json:"store_name,omitempty"`
	Totals    RevenueTotals         `json:"totals"`
	ByStore   []StoreRevenueSummary `json:"by_store"`
}

type MonthlyRevenueStats struct {
	Year         int                      `json:"year"`
	Month        int                      `json:"month"`
	StoreName    string                   `json:"store_name,omitempty"`
	Totals       RevenueTotals            `json:"totals"`
	ByStore      []StoreRevenueSummary    `json:"by_store"`
	ByDay        []DayRevenueSummary      `json:"by_day"`
	TopEmployees []EmployeeRevenueSummary `json:"top_employees"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Envelope struct {
	Success bool         `json:"success"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

type AttendanceNotification struct {
	Type           string    `json:"type"`
	EmployeeID     string    `json:"employee_id"`
	EmployeeName   string    `json:"employee_name"`
	StoreName      string    `json:"store_name"`
	Timestamp      time.Time `json:"timestamp"`
	LateMinutes    int       `json:"late_minutes"`
	WorkHours      float64   `json:"work_hours"`
	DistanceMeters float64   `json:"distance_meters"`
	DeviceAnomaly  string    `json:"device_anomaly,omitempty"`
}

type RevenueNotification struct {
	Action        string `json:"action"`
	RecordID      string `json:"record_id"`
	EmployeeName  string `json:"employee_name"`
	StoreName     string `json:"store_name"`
	BusinessDate  string `json:"business_date"`
	TotalRevenue  int64  `json:"total_revenue"`
	NetIncome     int64  `json:"net_income"`
	ComputedBonus int64  `json:"computed_bonus"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreName     string    `json:"store_name"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	EmployeeID  string `json:"employee_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username   string
	Role       string
	EmployeeID string
}

type AccountCreateRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	EmployeeID string `json:"employee_id"`
}

type Account struct {
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	EmployeeID string    `json:"employee_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type UserAccount struct {
	Username   string
	Password   string
	Role       string
	EmployeeID string
	Active     bool
	CreatedAt  time.Time
}

const (
	ClockTypeIn  = "clock_in"
	ClockTypeOut = "clock_out"
)

const (
	LateStatusNormal = "normal"
	LateStatusLate   = "late"
)

const (
	EmployeeStatusActive   = "active"
	EmployeeStatusInactive = "inactive"
)

const (
	BonusTypeWeekday = "weekday"
	BonusTypeHoliday = "holiday"
)

const (
	DayStateNone       = "none"
	DayStateClockedIn  = "clocked_in"
	DayStateClockedOut = "clocked_out"
)

const (
	DeviceAnomalyNoFingerprint = "no fingerprint"
	DeviceAnomalyNewDevice     = "new device"
)

const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
)

const DateLayout = "2006-01-02"

// MaxMoneyAmount bounds each revenue and expense input.
const MaxMoneyAmount int64 = 1_000_000_000_000
