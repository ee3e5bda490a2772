package formz

import (
	"fmt"
	"regexp"

	playground "github.com/go-playground/validator/v10"
)

// Built-in synchronous validators covering the common schema rules. Each
// returns a SyncValidator ready to register directly or through a
// FieldSpec.

// Required fails on nil, empty string, and empty slices or maps.
func Required() SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		if isEmpty(value) {
			return &ValidationError{Code: "required", Message: "value is required"}
		}
		return nil
	}
}

// MinLength fails when a string value is shorter than min runes.
// Non-string values pass; pair with a type-enforcing rule when needed.
func MinLength(min int) SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		if len([]rune(s)) < min {
			return &ValidationError{
				Code:    "minLength",
				Message: fmt.Sprintf("must be at least %d characters", min),
				Params:  map[string]any{"min": min, "actual": len([]rune(s))},
			}
		}
		return nil
	}
}

// MaxLength fails when a string value is longer than max runes.
func MaxLength(max int) SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		if len([]rune(s)) > max {
			return &ValidationError{
				Code:    "maxLength",
				Message: fmt.Sprintf("must be at most %d characters", max),
				Params:  map[string]any{"max": max, "actual": len([]rune(s))},
			}
		}
		return nil
	}
}

// Min fails when a numeric value is below min. Non-numeric values pass.
func Min(min float64) SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		n, ok := asFloat(value)
		if !ok {
			return nil
		}
		if n < min {
			return &ValidationError{
				Code:    "min",
				Message: fmt.Sprintf("must be at least %v", min),
				Params:  map[string]any{"min": min, "actual": n},
			}
		}
		return nil
	}
}

// Max fails when a numeric value is above max. Non-numeric values pass.
func Max(max float64) SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		n, ok := asFloat(value)
		if !ok {
			return nil
		}
		if n > max {
			return &ValidationError{
				Code:    "max",
				Message: fmt.Sprintf("must be at most %v", max),
				Params:  map[string]any{"max": max, "actual": n},
			}
		}
		return nil
	}
}

// Pattern fails when a string value does not match re. Non-string values
// pass.
func Pattern(re *regexp.Regexp) SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		if !re.MatchString(s) {
			return &ValidationError{
				Code:    "pattern",
				Message: fmt.Sprintf("must match %s", re.String()),
				Params:  map[string]any{"pattern": re.String()},
			}
		}
		return nil
	}
}

// OneOf fails when the value is not among the allowed set.
func OneOf(allowed ...any) SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		for _, a := range allowed {
			if a == value {
				return nil
			}
		}
		return &ValidationError{
			Code:    "oneOf",
			Message: "value is not one of the allowed options",
			Params:  map[string]any{"allowed": allowed},
		}
	}
}

// validate backs Tag. A single instance caches parsed tag programs.
var validate = playground.New()

// Tag adapts a go-playground/validator rule expression ("email",
// "url", "uuid4", "gte=18,lte=130", ...) into a SyncValidator, giving
// schemas the full rule vocabulary without bespoke validators.
func Tag(rule string) SyncValidator {
	return func(value any, _ ValidationContext) *ValidationError {
		if err := validate.Var(value, rule); err != nil {
			return &ValidationError{
				Code:    "tag",
				Message: fmt.Sprintf("failed rule %q", rule),
				Params:  map[string]any{"rule": rule},
			}
		}
		return nil
	}
}

// Warn downgrades a validator's findings to warning severity: surfaced,
// never submit-blocking.
func Warn(v SyncValidator) SyncValidator {
	return func(value any, vc ValidationContext) *ValidationError {
		ve := v(value, vc)
		if ve != nil {
			ve.Severity = SeverityWarning
		}
		return ve
	}
}

func isEmpty(value any) bool {
	switch t := value.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func asFloat(value any) (float64, bool) {
	switch t := value.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
