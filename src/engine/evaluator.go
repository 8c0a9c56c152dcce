package engine

import (
	"strings"

	"ruleflow-server/src/models"

	"github.com/shopspring/decimal"
)

// Evaluate reports whether the rule's condition matches the event. Pure and
// side effect free, so callers may retry or parallelize it freely.
//
// Numeric operators fail closed: a non-numeric field or condition value
// returns false instead of erroring, so one malformed rule cannot halt a
// batch. String equality is case-insensitive, matching how users type
// merchant names; contains is a case-insensitive substring match.
func Evaluate(rule models.Rule, event models.TransactionEvent) bool {
	cond := rule.Condition

	switch cond.Op {
	case models.OpEq:
		if cond.Field == "amount" {
			want, ok := conditionAmount(cond.Value)
			return ok && event.Amount.Equal(want)
		}
		s, ok := stringField(event, cond.Field)
		want, ok2 := cond.Value.(string)
		return ok && ok2 && strings.EqualFold(s, want)
	case models.OpContains:
		s, ok := stringField(event, cond.Field)
		want, ok2 := cond.Value.(string)
		return ok && ok2 && strings.Contains(strings.ToLower(s), strings.ToLower(want))
	case models.OpGt, models.OpLt, models.OpGte, models.OpLte:
		if cond.Field != "amount" {
			return false
		}
		want, ok := conditionAmount(cond.Value)
		if !ok {
			return false
		}
		switch cond.Op {
		case models.OpGt:
			return event.Amount.GreaterThan(want)
		case models.OpLt:
			return event.Amount.LessThan(want)
		case models.OpGte:
			return event.Amount.GreaterThanOrEqual(want)
		default:
			return event.Amount.LessThanOrEqual(want)
		}
	default:
		return false
	}
}

func stringField(event models.TransactionEvent, field string) (string, bool) {
	switch field {
	case "description":
		return event.Description, true
	case "category":
		return event.Category, true
	case "account_id":
		return event.AccountID, true
	default:
		return "", false
	}
}

// conditionAmount coerces a JSON condition value into a decimal. Values arrive
// as float64 from encoding/json or as a string from hand-written rules.
func conditionAmount(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}
