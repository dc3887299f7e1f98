package types

import (
	"errors"
	"fmt"
)

// RegistrationError reports a suite or test declared with the wrong shape.
type RegistrationError struct {
	Name string
	Msg  string
}

func (e *RegistrationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("registration error: %s", e.Msg)
	}
	return fmt.Sprintf("registration error for %q: %s", e.Name, e.Msg)
}

// IsRegistrationError checks if the error is or wraps a RegistrationError
func IsRegistrationError(err error) bool {
	var re *RegistrationError
	return err != nil && errors.As(err, &re)
}
