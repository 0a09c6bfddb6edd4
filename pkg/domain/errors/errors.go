package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransientDependency *TransientDependencyError
	ErrConfiguration       *ConfigurationError
	ErrMalformedInput      *MalformedInputError
)

// TransientDependencyError wraps a failure of the key/value collaborator. The
// in-memory state is still updated when it is returned.
type TransientDependencyError struct {
	Op  string
	Err error
}

func (e *TransientDependencyError) Error() string {
	return fmt.Sprintf("dependency unavailable during %s: %v", e.Op, e.Err)
}

func (e *TransientDependencyError) Unwrap() error {
	return e.Err
}

func NewTransientDependencyError(op string, err error) error {
	return &TransientDependencyError{Op: op, Err: err}
}

func IsTransientDependency(err error) bool {
	if err == nil {
		return false
	}
	var target *TransientDependencyError
	return errors.As(err, &target)
}

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func NewConfigurationError(field string, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Err: fmt.Errorf(format, args...)}
}

func IsConfiguration(err error) bool {
	if err == nil {
		return false
	}
	var target *ConfigurationError
	return errors.As(err, &target)
}

type MalformedInputError struct {
	Field  string
	Reason string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed input: %s %s", e.Field, e.Reason)
}

func NewMalformedInputError(field, reason string) error {
	return &MalformedInputError{Field: field, Reason: reason}
}

func IsMalformedInput(err error) bool {
	if err == nil {
		return false
	}
	var target *MalformedInputError
	return errors.As(err, &target)
}
