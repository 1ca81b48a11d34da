package workflow

import (
	"errors"
	"fmt"
	"strings"

	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
)

var (
	// ErrGuardViolation matches every *TransitionError.
	ErrGuardViolation = errors.New("transition guard violated")
	// ErrNotConfigured matches every *ConfigError.
	ErrNotConfigured = errors.New("external services not configured")
	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// TransitionError reports an operation rejected by its guard. The session
// is left untouched.
type TransitionError struct {
	From   model.Step
	To     model.Step
	Reason string
}

func (e *TransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("operation not allowed at step %s: %s", e.From, e.Reason)
	}
	return fmt.Sprintf("cannot move from %s to %s: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrGuardViolation
}

func guardError(from, to model.Step, format string, args ...any) error {
	return &TransitionError{From: from, To: to, Reason: fmt.Sprintf(format, args...)}
}

// ConfigError names the credentials whose absence blocks the workflow start,
// and the clients that have credentials but failed to initialise.
type ConfigError struct {
	Missing []string
	Failed  []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing credentials: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Failed) > 0 {
		parts = append(parts, "clients unavailable: "+strings.Join(e.Failed, "; "))
	}
	return strings.Join(parts, "; ")
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrNotConfigured
}
