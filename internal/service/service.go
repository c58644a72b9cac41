package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"shiftbook/backend/internal/bonus"
	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/fingerprint"
	"shiftbook/backend/internal/geofence"
	"shiftbook/backend/internal/lock"
	"shiftbook/backend/internal/logger"
	"shiftbook/backend/internal/notify"
	"shiftbook/backend/internal/store"
	"shiftbook/backend/internal/xid"
)

var (
	ErrEmployeeNotFound  = errors.New("employee not found")
	ErrEmployeeInactive  = errors.New("employee is not active")
	ErrInvalidClockOrder = errors.New("clock-out time is before clock-in time")
	ErrInternal          = errors.New("internal error")
)

const (
	defaultShiftName    = "morning"
	defaultHistoryLimit = 100
	defaultTopEmployees = 5
	notificationTimeout = 10 * time.Second
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Stores              []domain.Store
	DefaultRadiusMeters float64
	Shifts              []domain.ShiftConfig
	BonusRules          map[string]domain.BonusRule
	Locker              lock.Locker
	LockScope           lock.Scope
	Notifier            notify.Notifier
	Location            *time.Location
	Logger              *zap.Logger
	Now                 func() time.Time
	TopEmployees        int
}

type Service struct {
	repo         store.Repository
	stores       geofence.StaticStores
	geofence     *geofence.Validator
	fingerprints *fingerprint.Analyzer
	bonus        *bonus.Engine
	shifts       map[string]domain.ShiftConfig
	locker       lock.Locker
	scope        lock.Scope
	notifier     notify.Notifier
	loc          *time.Location
	log          *zap.Logger
	now          func() time.Time
	topEmployees int
	validate     *requestValidator

	pending sync.WaitGroup
}

func New(repo store.Repository, opts Options) *Service {
	stores := geofence.NewStaticStores(opts.Stores)

	shifts := make(map[string]domain.ShiftConfig, len(opts.Shifts)+1)
	shifts[defaultShiftName] = domain.ShiftConfig{Name: defaultShiftName, Start: "09:00", End: "18:00"}
	for _, shift := range opts.Shifts {
		name := strings.ToLower(strings.TrimSpace(shift.Name))
		if name == "" {
			continue
		}
		shift.Name = name
		shifts[name] = shift
	}

	locker := opts.Locker
	if locker == nil {
		locker = lock.NewMemory(lock.DefaultTimeout)
	}
	scope := opts.LockScope
	if scope == "" {
		scope = lock.ScopeKeyed
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	top := opts.TopEmployees
	if top < 1 {
		top = defaultTopEmployees
	}

	return &Service{
		repo:         repo,
		stores:       stores,
		geofence:     geofence.NewValidator(stores, opts.DefaultRadiusMeters),
		fingerprints: fingerprint.NewAnalyzer(),
		bonus:        bonus.NewEngine(repo, opts.BonusRules),
		shifts:       shifts,
		locker:       locker,
		scope:        scope,
		notifier:     notifier,
		loc:          loc,
		log:          logger.Named(opts.Logger, "svc.ledger"),
		now:          now,
		topEmployees: top,
		validate:     newRequestValidator(),
	}
}

// WaitNotifications blocks until in-flight notifications finish or ctx is done.
func (s *Service) WaitNotifications(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Today() string {
	return s.now().In(s.loc).Format(domain.DateLayout)
}

// withLock runs fn while holding key. A panic inside fn is converted to ErrInternal;
// the lock is released on every path.
func (s *Service) withLock(ctx context.Context, key string, fn func() error) (err error) {
	release, err := s.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			s.log.Warn("ledger lock timeout", zap.String("key", key), zap.Error(err))
			return err
		}
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in ledger write", zap.String("key", key), zap.Any("panic", r))
			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()
	return fn()
}

func (s *Service) activeEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	employee, err := s.repo.GetEmployeeByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
		}
		return nil, err
	}
	if employee.Status != domain.EmployeeStatusActive {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeInactive, employeeID)
	}
	return employee, nil
}

// GetEmployee returns master data for any employee, active or not.
func (s *Service) GetEmployee(ctx context.Context, employeeID string) (domain.Employee, error) {
	employee, err := s.repo.GetEmployeeByID(ctx, sanitize(employeeID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Employee{}, fmt.Errorf("%w: %s", ErrEmployeeNotFound, employeeID)
		}
		return domain.Employee{}, err
	}
	return *employee, nil
}

func (s *Service) notifyAsync(kind string, send func(ctx context.Context) error) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Warn("notification panicked", zap.String("kind", kind), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.log.Warn("notification failed", zap.String("kind", kind), zap.Error(err))
		}
	}()
}

func (s *Service) logAudit(ctx context.Context, storeName string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreName:     storeName,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = s.now().UTC().Add(time.Second)
		from = to.Add(-24 * time.Hour)
	} else {
		parsed, err := time.ParseInLocation(domain.DateLayout, date, s.loc)
		if err != nil {
			return nil, fieldError("date", "must be a date in YYYY-MM-DD format")
		}
		from = parsed.UTC()
		to = from.Add(24 * time.Hour)
	}

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// sanitize trims s and strips control characters.
func sanitize(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
