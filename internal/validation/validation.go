package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	idRegex    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`)
)

// DateLayout is the calendar date format accepted by entry points
const DateLayout = "2006-01-02"

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidateName checks a display name such as a rule or goal title
func ValidateName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	if len(name) > 120 {
		return ValidationError{Field: field, Message: field + " must be at most 120 characters"}
	}
	return nil
}

// ValidateID checks an opaque identifier
func ValidateID(field, id string) error {
	if id == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	if !idRegex.MatchString(id) {
		return ValidationError{Field: field, Message: "invalid " + field}
	}
	return nil
}

// ValidateTimezone checks an IANA timezone name
func ValidateTimezone(tz string) error {
	if tz == "" {
		return ValidationError{Field: "timezone", Message: "timezone is required"}
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return ValidationError{Field: "timezone", Message: fmt.Sprintf("unknown timezone %q", tz)}
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date at midnight UTC
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return t, nil
}

// ValidateDateRange checks an inclusive date range no longer than maxDays
func ValidateDateRange(start, end time.Time, maxDays int) error {
	if end.Before(start) {
		return ValidationError{Field: "end_date", Message: "end_date must not be before start_date"}
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxDays {
		return ValidationError{Field: "end_date", Message: fmt.Sprintf("range must be at most %d days", maxDays)}
	}
	return nil
}
