package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/adhocore/gronx"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("clock", validateClock); err != nil {
		panic(fmt.Sprintf("failed to register clock validator: %v", err))
	}
	if err := Validate.RegisterValidation("cron", validateCron); err != nil {
		panic(fmt.Sprintf("failed to register cron validator: %v", err))
	}
}

// validateClock validates a 24-hour HH:MM time of day
func validateClock(fl validator.FieldLevel) bool {
	_, _, err := ParseClock(fl.Field().String())
	return err == nil
}

// validateCron validates a 5-field cron expression
func validateCron(fl validator.FieldLevel) bool {
	return ValidateCron(fl.Field().String()) == nil
}

// ParseClock parses a 24-hour "HH:MM" time of day
func ParseClock(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if len(value) != 5 {
		return 0, 0, fmt.Errorf("invalid time of day %q (must be HH:MM)", value)
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q (must be HH:MM)", value)
	}
	return t.Hour(), t.Minute(), nil
}

// ValidateCron validates a standard 5-field cron expression
func ValidateCron(expr string) error {
	if len(strings.Fields(expr)) != 5 || !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q (must be 5 fields: minute hour day-of-month month day-of-week)", expr)
	}
	return nil
}

// FormatError flattens validator errors into a single readable error
func FormatError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), describe(fe)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "clock":
		return fmt.Sprintf("%q must be a time of day in HH:MM", fe.Value())
	case "cron":
		return fmt.Sprintf("%q must be a 5-field cron expression", fe.Value())
	case "timezone":
		return fmt.Sprintf("%q is not a known IANA timezone", fe.Value())
	case "oneof":
		return fmt.Sprintf("%v must be one of [%s]", fe.Value(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
