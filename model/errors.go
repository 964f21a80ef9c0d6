package model

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound covers both missing rows and rows owned by someone else.
	ErrNotFound          = fmt.Errorf("not found")
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrValidation        = fmt.Errorf("validation failed")
	ErrExternal          = fmt.Errorf("external capability failure")
	ErrConflict          = fmt.Errorf("concurrent modification")
	ErrClientInUse       = fmt.Errorf("client is still referenced")
	ErrAlreadyGenerated  = fmt.Errorf("occurrence already generated")
)

// ValidationError describes one rejected input field. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// translate maps gorm's record-not-found onto ErrNotFound and keeps
// everything else as is.
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
