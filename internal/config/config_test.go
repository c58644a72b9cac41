package config

import (
	"strings"
	"testing"
	"time"

	"shiftbook/backend/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("STORES", "")
	t.Setenv("LOCK_SCOPE", "")
	t.Setenv("TIMEZONE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.Timezone != "Asia/Taipei" || cfg.LockScope != "keyed" {
		t.Fatalf("unexpected defaults: tz=%q scope=%q", cfg.Timezone, cfg.LockScope)
	}
	if cfg.LockTimeout != 30*time.Second || cfg.DefaultRadiusMeters != 100 {
		t.Fatalf("unexpected lock/radius defaults: %v %v", cfg.LockTimeout, cfg.DefaultRadiusMeters)
	}
	if rule := cfg.BonusRules[domain.BonusTypeWeekday]; rule.Threshold != 13000 || rule.Rate != 0.30 {
		t.Fatalf("unexpected weekday rule: %+v", rule)
	}
	if rule := cfg.BonusRules[domain.BonusTypeHoliday]; rule.Threshold != 0 || rule.Rate != 0.38 {
		t.Fatalf("unexpected holiday rule: %+v", rule)
	}
	if len(cfg.Stores) == 0 {
		t.Fatalf("expected default stores")
	}
	if cfg.Telegram.Enabled() {
		t.Fatalf("telegram must be disabled without token")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"LOCK_SCOPE", "table", "LOCK_SCOPE"},
		{"LOCK_TIMEOUT_SECONDS", "0", "LOCK_TIMEOUT_SECONDS"},
		{"LOCK_TIMEOUT_SECONDS", "abc", "LOCK_TIMEOUT_SECONDS"},
		{"DEFAULT_RADIUS_METERS", "-1", "DEFAULT_RADIUS_METERS"},
		{"SHIFT_MORNING_START", "9am", "shift morning"},
		{"STORES", "Main|95|121", "invalid latitude"},
		{"STORES", "Main|25|121|100;Main|25|121", "duplicate"},
		{"TIMEZONE", "Mars/Olympus", "TIMEZONE"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseStores(t *testing.T) {
	stores, err := ParseStores(" Main|25.0330|121.5654|120 ; Annex|25.04|121.56 ;")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(stores) != 2 {
		t.Fatalf("expected 2 stores, got %d", len(stores))
	}
	if stores[0].Name != "Main" || stores[0].RadiusMeters != 120 {
		t.Fatalf("unexpected first store: %+v", stores[0])
	}
	if stores[1].RadiusMeters != 0 {
		t.Fatalf("omitted radius must stay 0 for default fallback, got %v", stores[1].RadiusMeters)
	}
}
