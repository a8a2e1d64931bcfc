// Package qmserrors defines the error types returned by the quota, ownership, and token components. Each type carries
// enough structure for an HTTP handler to render an actionable response.
package qmserrors

import (
	"fmt"

	"github.com/cyverse/compute-qms/internal/model"
	"github.com/pkg/errors"
)

// ValidationError indicates malformed input. No state is mutated when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation creates a new validation error.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates that a user, contract, request, plan, or resource does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound creates a new not-found error.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// QuotaExceededError indicates that an admission request was denied because a quota dimension would be exceeded.
type QuotaExceededError struct {
	Reason       string          `json:"reason"`
	Dimension    model.Dimension `json:"dimension"`
	CurrentUsage model.Usage     `json:"current_usage"`
	Quotas       model.Quotas    `json:"quotas"`
}

func (e *QuotaExceededError) Error() string {
	return e.Reason
}

// InsufficientTokensError indicates that an economic operation was denied because the balance is too small.
type InsufficientTokensError struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
	Shortage  int64 `json:"shortage"`
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: %d required, %d available", e.Required, e.Available)
}

// InsufficientTokens creates a new insufficient tokens error.
func InsufficientTokens(required, available int64) error {
	return &InsufficientTokensError{Required: required, Available: available, Shortage: required - available}
}

// SuspendedError indicates that the account is suspended.
type SuspendedError struct {
	UserID string
}

func (e *SuspendedError) Error() string {
	return "account suspended"
}

// InfrastructureError wraps an opaque failure from an infrastructure provider.
type InfrastructureError struct {
	Operation string
	Err       error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure %s failed: %s", e.Operation, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Infrastructure creates a new infrastructure error.
func Infrastructure(operation string, err error) error {
	return &InfrastructureError{Operation: operation, Err: err}
}

// ConflictError indicates that a request conflicts with the current state of a record.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Conflict creates a new conflict error.
func Conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError indicates that the caller may not act on a resource.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// Forbidden creates a new forbidden error.
func Forbidden(format string, args ...any) error {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// IsNotFound returns true if err or any error it wraps is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
