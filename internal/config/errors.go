package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment")

	// ErrInvalidConfig is returned when parsed values are inconsistent or unusable.
	ErrInvalidConfig = errors.New("config: invalid value")
)
