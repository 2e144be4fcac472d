package config

import (
	"errors"
	"fmt"

	"github.com/dshills/strand/internal/config/loader"
)

var (
	// ErrValidationFailed is matched by every error Validate returns.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnknownSetting is returned for environment variables that name no
	// setting.
	ErrUnknownSetting = errors.New("unknown setting")
)

// ParseError reports a file that could not be decoded.
type ParseError = loader.ParseError

// ValidationError describes one invalid setting.
type ValidationError struct {
	Path    string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (value: %v)", e.Path, e.Message, e.Value)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
