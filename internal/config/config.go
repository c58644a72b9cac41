package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/lock"
	"shiftbook/backend/internal/shifttime"
)

const defaultStores = "Main Store|25.0330|121.5654|100;Xinyi Branch|25.0340|121.5680|150"

type TelegramConfig struct {
	BotToken string
	ChatID   string
	BaseURL  string
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	LogLevel              string
	Timezone              string
	DefaultRadiusMeters   float64
	LockTimeout           time.Duration
	LockScope             string
	Shifts                []domain.ShiftConfig
	BonusRules            map[string]domain.BonusRule
	Stores                []domain.Store
	Telegram              TelegramConfig
	ReportCronSchedule    string
	AuthSecret            string
	AccessTokenTTLMinutes int

	storesErr error
	numErrs   []error
}

// Load reads an optional .env file and the process environment, then validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Timezone:           getEnv("TIMEZONE", "Asia/Taipei"),
		LockScope:          getEnv("LOCK_SCOPE", string(lock.ScopeKeyed)),
		ReportCronSchedule: getEnv("REPORT_CRON_SCHEDULE", "0 22 * * *"),
		AuthSecret:         strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		Telegram: TelegramConfig{
			BotToken: strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
			ChatID:   strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
			BaseURL:  getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		},
		Shifts: []domain.ShiftConfig{
			{Name: "morning", Start: getEnv("SHIFT_MORNING_START", "09:00"), End: getEnv("SHIFT_MORNING_END", "18:00")},
			{Name: "evening", Start: getEnv("SHIFT_EVENING_START", "14:00"), End: getEnv("SHIFT_EVENING_END", "22:00")},
		},
	}

	cfg.RedisDB = cfg.intEnv("REDIS_DB", 0)
	cfg.AccessTokenTTLMinutes = cfg.intEnv("ACCESS_TOKEN_TTL_MINUTES", 480)
	cfg.DefaultRadiusMeters = cfg.floatEnv("DEFAULT_RADIUS_METERS", 100)
	cfg.LockTimeout = time.Duration(cfg.intEnv("LOCK_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.BonusRules = map[string]domain.BonusRule{
		domain.BonusTypeWeekday: {
			Threshold: int64(cfg.intEnv("BONUS_WEEKDAY_THRESHOLD", 13000)),
			Rate:      cfg.floatEnv("BONUS_WEEKDAY_RATE", 0.30),
		},
		domain.BonusTypeHoliday: {
			Threshold: int64(cfg.intEnv("BONUS_HOLIDAY_THRESHOLD", 0)),
			Rate:      cfg.floatEnv("BONUS_HOLIDAY_RATE", 0.38),
		},
	}
	cfg.Stores, cfg.storesErr = ParseStores(getEnv("STORES", defaultStores))

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configuration the ledger cannot run with.
func (c Config) Validate() error {
	if len(c.numErrs) > 0 {
		return errors.Join(c.numErrs...)
	}
	if c.storesErr != nil {
		return c.storesErr
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must be provided")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.DefaultRadiusMeters < 0 {
		return errors.New("DEFAULT_RADIUS_METERS must not be negative")
	}
	if c.LockTimeout <= 0 {
		return errors.New("LOCK_TIMEOUT_SECONDS must be positive")
	}
	if _, err := lock.ParseScope(c.LockScope); err != nil {
		return fmt.Errorf("LOCK_SCOPE: %w", err)
	}
	for _, shift := range c.Shifts {
		if _, _, err := shifttime.ParseClock(shift.Start); err != nil {
			return fmt.Errorf("shift %s start: %w", shift.Name, err)
		}
		if _, _, err := shifttime.ParseClock(shift.End); err != nil {
			return fmt.Errorf("shift %s end: %w", shift.Name, err)
		}
	}
	for name, rule := range c.BonusRules {
		if rule.Threshold < 0 || rule.Rate < 0 {
			return fmt.Errorf("bonus rule %s must not be negative", name)
		}
	}
	if len(c.Stores) == 0 {
		return errors.New("STORES must list at least one store")
	}
	if strings.TrimSpace(c.ReportCronSchedule) == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}
	if c.AccessTokenTTLMinutes < 1 {
		return errors.New("ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location returns the business timezone; callers must have run Validate.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseStores reads "name|lat|lng|radius;..." where radius may be omitted.
func ParseStores(raw string) ([]domain.Store, error) {
	stores := make([]domain.Store, 0, 4)
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, fmt.Errorf("STORES entry %q: expected name|lat|lng|radius", entry)
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("STORES entry %q: empty name", entry)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("STORES entry %q: duplicate store name", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("STORES entry %q: invalid latitude", entry)
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || lng < -180 || lng > 180 {
			return nil, fmt.Errorf("STORES entry %q: invalid longitude", entry)
		}
		store := domain.Store{Name: name, Latitude: lat, Longitude: lng}
		if len(parts) == 4 && strings.TrimSpace(parts[3]) != "" {
			radius, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
			if err != nil || radius < 0 {
				return nil, fmt.Errorf("STORES entry %q: invalid radius", entry)
			}
			store.RadiusMeters = radius
		}
		seen[name] = struct{}{}
		stores = append(stores, store)
	}
	return stores, nil
}

func (c *Config) intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		c.numErrs = append(c.numErrs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (c *Config) floatEnv(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		c.numErrs = append(c.numErrs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
