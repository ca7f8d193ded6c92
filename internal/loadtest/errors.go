package loadtest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyRunning is returned when a start is requested while a run is active.
	ErrAlreadyRunning = errors.New("a load test is already running")
	// ErrInvalidConfig matches every *InvalidConfigError via errors.Is.
	ErrInvalidConfig = errors.New("invalid test configuration")
)

// InvalidConfigError lists the problems found in a TestConfig.
type InvalidConfigError struct {
	issues []string
}

func (e *InvalidConfigError) Error() string {
	if len(e.issues) == 0 {
		return ErrInvalidConfig.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(e.issues, "; "))
}

func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Issues returns a copy of the individual validation failures.
func (e *InvalidConfigError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// NewInvalidConfigError wraps issues found outside TestConfig.Validate.
func NewInvalidConfigError(issues ...string) *InvalidConfigError {
	return &InvalidConfigError{issues: issues}
}
