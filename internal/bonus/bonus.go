package bonus

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"shiftbook/backend/internal/domain"
	"shiftbook/backend/internal/store"
)

var (
	DefaultWeekdayRule = domain.BonusRule{Threshold: 13000, Rate: 0.30}
	DefaultHolidayRule = domain.BonusRule{Threshold: 0, Rate: 0.38}
)

const DefaultMultiplier = 1.0

type Directory interface {
	GetEmployeeByID(ctx context.Context, id string) (*domain.Employee, error)
	GetPosition(ctx context.Context, name string) (*domain.Position, error)
}

type Engine struct {
	directory Directory
	rules     map[string]domain.BonusRule
}

func NewEngine(directory Directory, rules map[string]domain.BonusRule) *Engine {
	merged := map[string]domain.BonusRule{
		domain.BonusTypeWeekday: DefaultWeekdayRule,
		domain.BonusTypeHoliday: DefaultHolidayRule,
	}
	for bonusType, rule := range rules {
		if _, known := merged[bonusType]; !known {
			continue
		}
		if rule.Threshold < 0 || rule.Rate < 0 {
			continue
		}
		merged[bonusType] = rule
	}
	return &Engine{directory: directory, rules: merged}
}

func (e *Engine) Rule(bonusType string) (domain.BonusRule, bool) {
	rule, ok := e.rules[bonusType]
	return rule, ok
}

func (e *Engine) Rules() map[string]domain.BonusRule {
	out := make(map[string]domain.BonusRule, len(e.rules))
	for k, v := range e.rules {
		out[k] = v
	}
	return out
}

// Compute never returns an error; invalid input yields a zeroed result with Success=false.
func (e *Engine) Compute(ctx context.Context, totalRevenue int64, bonusType string, employeeID string) domain.BonusResult {
	if totalRevenue < 0 {
		return domain.BonusResult{Message: "total revenue must not be negative"}
	}
	if totalRevenue > 3*domain.MaxMoneyAmount {
		return domain.BonusResult{Message: "total revenue is too large"}
	}
	rule, ok := e.rules[strings.TrimSpace(bonusType)]
	if !ok {
		return domain.BonusResult{Message: "bonus type must be weekday or holiday"}
	}
	employee, err := e.directory.GetEmployeeByID(ctx, strings.TrimSpace(employeeID))
	if err != nil {
		return domain.BonusResult{Message: "employee not found"}
	}

	multiplier := DefaultMultiplier
	if employee.Position != "" {
		position, err := e.directory.GetPosition(ctx, employee.Position)
		switch {
		case err == nil && position.BonusMultiplier > 0:
			multiplier = position.BonusMultiplier
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return domain.BonusResult{Message: "position lookup failed"}
		}
	}

	return Calculate(totalRevenue, rule, multiplier)
}

func Calculate(totalRevenue int64, rule domain.BonusRule, multiplier float64) domain.BonusResult {
	result := domain.BonusResult{
		Success:    true,
		Threshold:  rule.Threshold,
		Rate:       rule.Rate,
		Multiplier: multiplier,
	}
	if totalRevenue <= rule.Threshold {
		result.Shortfall = rule.Threshold - totalRevenue
		return result
	}

	amount := decimal.NewFromInt(totalRevenue - rule.Threshold).
		Mul(decimal.NewFromFloat(rule.Rate)).
		Mul(decimal.NewFromFloat(multiplier)).
		Round(0)

	result.Bonus = amount.IntPart()
	result.IsQualified = true
	return result
}
