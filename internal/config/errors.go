package config

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	// ErrUnsupportedDriver marks a roster_driver other than postgres or sqlite.
	// It is always reported together with ErrInvalidConfig.
	ErrUnsupportedDriver = errors.New("unsupported roster driver")
)
