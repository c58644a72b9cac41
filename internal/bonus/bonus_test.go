package bonus

import (
	"context"
	"testing"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
)

type fakeDirectory struct {
	employees map[string]domain.Employee
	positions map[string]domain.Position
}

func (f fakeDirectory) GetEmployeeByID(_ context.Context, id string) (*domain.Employee, error) {
	e, ok := f.employees[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (f fakeDirectory) GetPosition(_ context.Context, name string) (*domain.Position, error) {
	p, ok := f.positions[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func newTestEngine() *Engine {
	return NewEngine(fakeDirectory{
		employees: map[string]domain.Employee{
			"E001": {ID: "E001", Name: "Lin", Status: domain.EmployeeStatusActive, Position: "staff"},
			"E002": {ID: "E002", Name: "Chen", Status: domain.EmployeeStatusActive, Position: "manager"},
			"E003": {ID: "E003", Name: "Wu", Status: domain.EmployeeStatusActive, Position: "intern"},
		},
		positions: map[string]domain.Position{
			"staff":   {Name: "staff", BonusMultiplier: 1.0},
			"manager": {Name: "manager", BonusMultiplier: 1.5},
		},
	}, nil)
}

func TestComputeWeekdayScenario(t *testing.T) {
	got := newTestEngine().Compute(context.Background(), 20000, domain.BonusTypeWeekday, "E001")
	if !got.Success || !got.IsQualified {
		t.Fatalf("expected qualified result, got %+v", got)
	}
	if got.Bonus != 2100 || got.Threshold != 13000 || got.Rate != 0.30 || got.Multiplier != 1.0 {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.Shortfall != 0 {
		t.Fatalf("expected zero shortfall when qualified, got %d", got.Shortfall)
	}
}

func TestComputeThresholdBoundary(t *testing.T) {
	e := newTestEngine()
	atThreshold := e.Compute(context.Background(), 13000, domain.BonusTypeWeekday, "E001")
	if atThreshold.Bonus != 0 || atThreshold.IsQualified || atThreshold.Shortfall != 0 {
		t.Fatalf("expected unqualified zero bonus at threshold, got %+v", atThreshold)
	}
	// 1 * 0.30 rounds to 0, so step far enough that the rate yields a visible amount.
	above := e.Compute(context.Background(), 13002, domain.BonusTypeWeekday, "E001")
	if !above.IsQualified || above.Bonus != 1 {
		t.Fatalf("expected qualified bonus of 1 just above threshold, got %+v", above)
	}
	oneAbove := e.Compute(context.Background(), 13001, domain.BonusTypeWeekday, "E001")
	if !oneAbove.IsQualified {
		t.Fatalf("expected threshold+1 to qualify, got %+v", oneAbove)
	}
	below := e.Compute(context.Background(), 9000, domain.BonusTypeWeekday, "E001")
	if below.Shortfall != 4000 || below.IsQualified {
		t.Fatalf("expected shortfall 4000, got %+v", below)
	}
}

func TestComputeAppliesPositionMultiplier(t *testing.T) {
	e := newTestEngine()
	manager := e.Compute(context.Background(), 20000, domain.BonusTypeWeekday, "E002")
	if manager.Bonus != 3150 || manager.Multiplier != 1.5 {
		t.Fatalf("expected manager bonus 3150, got %+v", manager)
	}
	intern := e.Compute(context.Background(), 20000, domain.BonusTypeWeekday, "E003")
	if intern.Multiplier != DefaultMultiplier || intern.Bonus != 2100 {
		t.Fatalf("expected default multiplier for unknown position, got %+v", intern)
	}
}

func TestComputeHolidayUsesZeroThreshold(t *testing.T) {
	got := newTestEngine().Compute(context.Background(), 10000, domain.BonusTypeHoliday, "E001")
	if got.Bonus != 3800 || got.Threshold != 0 {
		t.Fatalf("expected holiday bonus 3800, got %+v", got)
	}
}

func TestComputeInvalidInputIsZeroed(t *testing.T) {
	e := newTestEngine()
	for name, got := range map[string]domain.BonusResult{
		"negative revenue": e.Compute(context.Background(), -1, domain.BonusTypeWeekday, "E001"),
		"unknown type":     e.Compute(context.Background(), 20000, "festival", "E001"),
		"unknown employee": e.Compute(context.Background(), 20000, domain.BonusTypeWeekday, "E404"),
	} {
		if got.Success || got.Bonus != 0 || got.Threshold != 0 || got.Message == "" {
			t.Fatalf("%s: expected zeroed failure, got %+v", name, got)
		}
	}
}

func TestNewEngineOverridesRules(t *testing.T) {
	e := NewEngine(fakeDirectory{}, map[string]domain.BonusRule{
		domain.BonusTypeWeekday: {Threshold: 10000, Rate: 0.25},
		"unknown":               {Threshold: 1, Rate: 1},
	})
	rule, _ := e.Rule(domain.BonusTypeWeekday)
	if rule.Threshold != 10000 || rule.Rate != 0.25 {
		t.Fatalf("expected overridden weekday rule, got %+v", rule)
	}
	if _, ok := e.Rule("unknown"); ok {
		t.Fatalf("unexpected rule for unknown bonus type")
	}
}
