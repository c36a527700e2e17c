package facefinder

import (
	"fmt"

	"github.com/pkg/errors"
)

// DecodeError is returned when the input is not valid base64 or
// does not hold an image in one of the supported formats.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image decode error: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ModelLoadError reports a cascade that could not be read or unpacked.
// It only happens at startup and is not meant to be recovered from.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("error loading the %s model: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ShapeContractError is returned when a landmark shape does not have
// exactly Shape5Size points, meaning the shaper model and the pipeline disagree.
type ShapeContractError struct {
	Got int
}

func (e *ShapeContractError) Error() string {
	return fmt.Sprintf("landmark shape should have %d points, got %d", Shape5Size, e.Got)
}

// ConfigError wraps an invalid detection option.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid options: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsClientError reports whether err was caused by the caller input
// (bad image or bad options) rather than by the detector itself.
func IsClientError(err error) bool {
	var (
		decErr *DecodeError
		cfgErr *ConfigError
	)
	return errors.As(err, &decErr) || errors.As(err, &cfgErr)
}
