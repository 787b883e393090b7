package domain

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// FieldErrors is returned by the constructors in this package. It does not
// implement error, so an empty result stays nil wherever it is stored; check
// len(errs) > 0.
type FieldErrors []FieldError

func (fe FieldErrors) String() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// ByField groups messages by field name.
func (fe FieldErrors) ByField() map[string][]string {
	out := make(map[string][]string, len(fe))
	for _, e := range fe {
		out[e.Field] = append(out[e.Field], e.Msg)
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// messages maps field -> failing tag -> message.
var messages = map[string]map[string]string{
	"name": {
		"required": "Goal name is required",
		"min":      fmt.Sprintf("Goal name must be at least %d characters", MinGoalNameLen),
		"max":      fmt.Sprintf("Goal name must be at most %d characters", MaxGoalNameLen),
	},
	"targetAmount": {
		"required": "Target amount is required",
		"gt":       "Target amount must be greater than 0",
	},
	"currency": {
		"oneof": "Currency must be INR or USD",
	},
	"amount": {
		"required": "Contribution amount is required",
		"gt":       "Contribution amount must be greater than 0",
	},
	"date": {
		"required": "Date is required",
		"datetime": "Please enter a valid date",
	},
}

const (
	msgTargetRequired = "Target amount is required"
	msgAmountRequired = "Contribution amount is required"
	msgFutureDate     = "Date cannot be in the future"
)

func structErrors(s any) FieldErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{{Field: "", Msg: err.Error()}}
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, ve := range verrs {
		msg, ok := messages[ve.Field()][ve.Tag()]
		if !ok {
			msg = fmt.Sprintf("failed %q check", ve.Tag())
		}
		out = append(out, FieldError{Field: ve.Field(), Msg: msg})
	}
	return out
}

func hasField(fe FieldErrors, field string) bool {
	for _, e := range fe {
		if e.Field == field {
			return true
		}
	}
	return false
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// ValidateGoal checks a goal input. The name is expected to be trimmed already.
func ValidateGoal(in GoalInput) FieldErrors {
	errs := structErrors(in)
	if in.TargetAmount != nil && !finite(*in.TargetAmount) && !hasField(errs, "targetAmount") {
		errs = append(errs, FieldError{"targetAmount", msgTargetRequired})
	}
	return errs
}

// ValidateContribution checks a contribution input. A date is valid up to the
// end of today in now's location.
func ValidateContribution(in ContributionInput, now time.Time) FieldErrors {
	errs := structErrors(in)
	if in.Amount != nil && !finite(*in.Amount) && !hasField(errs, "amount") {
		errs = append(errs, FieldError{"amount", msgAmountRequired})
	}
	if !hasField(errs, "date") {
		d, err := time.ParseInLocation(DateLayout, in.Date, now.Location())
		if err == nil && d.After(endOfDay(now)) {
			errs = append(errs, FieldError{"date", msgFutureDate})
		}
	}
	return errs
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
