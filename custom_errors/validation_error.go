package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError collects every rule violation found during recurrence
// validation so the caller sees all problems at once.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (v *ValidationError) Add(err error) {
	v.Errors = append(v.Errors, err)
}

func (v *ValidationError) Addf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Errorf(format, args...))
}

func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(v.Errors...))
}

// Unwrap lets errors.Is see through to the individual violations.
func (v *ValidationError) Unwrap() []error {
	return v.Errors
}
