package config

import (
	"errors"
	"fmt"
)

// Sentinel errors. ErrUnknownCourse and ErrInvalidRubric also match
// ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	ErrUnknownCourse = fmt.Errorf("%w: unknown course", ErrInvalidConfig)
	ErrInvalidRubric = fmt.Errorf("%w: invalid rubric", ErrInvalidConfig)
)
