package util

import (
	"fmt"

	"ruleflow-server/src/models"

	"github.com/shopspring/decimal"
)

var validOps = map[string]bool{
	models.OpEq:       true,
	models.OpGt:       true,
	models.OpLt:       true,
	models.OpGte:      true,
	models.OpLte:      true,
	models.OpContains: true,
}

var validFields = map[string]bool{
	"amount":      true,
	"description": true,
	"category":    true,
	"account_id":  true,
}

// ValidateRule checks a rule against the schema invariants. The store calls
// this before every create and update, so an invalid rule is never persisted.
func ValidateRule(rule *models.Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(rule.Name) > 120 {
		return fmt.Errorf("rule name must be 120 characters or fewer")
	}
	if err := ValidateCondition(rule.Condition); err != nil {
		return err
	}
	return ValidateAction(rule.Action)
}

func ValidateCondition(cond models.Condition) error {
	if !validFields[cond.Field] {
		return fmt.Errorf("unknown condition field %q", cond.Field)
	}
	if !validOps[cond.Op] {
		return fmt.Errorf("unknown condition operator %q", cond.Op)
	}
	if cond.Value == nil {
		return fmt.Errorf("condition value is required")
	}
	return nil
}

func ValidateAction(action models.Action) error {
	switch action.Type {
	case models.ActionNotify:
		if action.Target == "" {
			return fmt.Errorf("notify action requires a target")
		}
	case models.ActionTransfer:
		if action.Target == "" {
			return fmt.Errorf("transfer action requires a destination account")
		}
		amount, err := decimal.NewFromString(action.Value)
		if err != nil {
			return fmt.Errorf("transfer action requires a numeric amount, got %q", action.Value)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("transfer amount must be positive")
		}
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
	return nil
}
