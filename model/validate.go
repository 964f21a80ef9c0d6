package model

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks the validate tags of v and reports the first failing
// field as a *ValidationError.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return invalid(snakeCase(fe.Field()), describeTag(fe))
	}
	return err
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return "failed on " + fe.Tag()
}

func snakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// validateLine checks the numeric parts of an invoice or template line.
func validateLine(description string, quantity, unitPrice decimal.Decimal) error {
	if strings.TrimSpace(description) == "" {
		return invalid("description", "is required")
	}
	if !quantity.IsPositive() {
		return invalid("quantity", "must be greater than zero")
	}
	if !unitPrice.IsPositive() {
		return invalid("unit_price", "must be greater than zero")
	}
	return nil
}

// lineAmount is the server side amount of a line, rounded to cents.
func lineAmount(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(2)
}
