package errors

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrValidation is returned when a caller supplied an out-of-range or
// malformed value (brightness, color, name length)
var ErrValidation = errors.New("validation failed")

// ErrConfiguration is returned when an effect name is unknown or its
// parameters do not match what the effect accepts
var ErrConfiguration = errors.New("invalid configuration")

// ErrDevice is returned when a call to a physical bulb failed
var ErrDevice = errors.New("device unavailable")

// ErrNotFound is returned when a requested resource doesn't exist
var ErrNotFound = errors.New("resource not found")

// LogErrorAndReturn logs an error with structured context and returns it
func LogErrorAndReturn(logger *slog.Logger, err error, message string, args ...any) error {
	// Don't modify nil errors
	if err == nil {
		return nil
	}

	// Log the error with the provided context
	logger.Error(message, append([]any{"error", err}, args...)...)
	return err
}

// WrapErrorf wraps an error with additional context using fmt.Errorf
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// IsValidation returns true if the error is or wraps ErrValidation
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfiguration returns true if the error is or wraps ErrConfiguration
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsDevice returns true if the error is or wraps ErrDevice
func IsDevice(err error) bool {
	return errors.Is(err, ErrDevice)
}

// IsNotFound returns true if the error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Validationf returns a formatted ErrValidation error
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Configurationf returns a formatted ErrConfiguration error
func Configurationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfiguration)...)
}

// Devicef returns a formatted ErrDevice error
func Devicef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrDevice)...)
}

// NotFoundf returns a formatted ErrNotFound error
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}
