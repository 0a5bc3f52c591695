package access

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrPolicyViolation = errors.New("policy violation")
	ErrUnknownRole     = errors.New("unknown role")
	ErrUnknownField    = errors.New("unknown field")
)

// PolicyViolation names the restricted fields a write tried to touch and the
// policy that protects them.
type PolicyViolation struct {
	Entity Entity
	Policy Policy
	Fields []string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("%s: %s %s fields [%s] require owner", ErrPolicyViolation, e.Entity, e.Policy, strings.Join(e.Fields, ", "))
}

func (e *PolicyViolation) Is(target error) bool {
	return target == ErrPolicyViolation
}

// UnknownFieldError lists payload fields that are not part of an entity's schema.
type UnknownFieldError struct {
	Entity Entity
	Fields []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s: %s has no field [%s]", ErrUnknownField, e.Entity, strings.Join(e.Fields, ", "))
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}
