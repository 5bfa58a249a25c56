package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/julianstephens/bayslots/internal/logger"
)

// Phase names the step of a reconcile run an error came from
type Phase string

const (
	PhaseConfig      Phase = "config"
	PhaseLoadBays    Phase = "load bays"
	PhaseLoadMaxDate Phase = "load max date"
	PhaseWriteDay    Phase = "write day"
	PhaseCleanup     Phase = "cleanup"
	PhaseRepairGaps  Phase = "repair gaps"
)

// PhaseError tags an error with the run phase that produced it.
// Fatal phases (config, load bays, load max date) abort a run before any write.
type PhaseError struct {
	Phase Phase
	Date  string // set for PhaseWriteDay
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Date != "" {
		return fmt.Sprintf("%s %s: %v", e.Phase, e.Date, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Wrap returns nil when err is nil
func Wrap(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: phase, Err: err}
}

// WrapDay tags a per-day write failure with its date
func WrapDay(date string, err error) error {
	if err == nil {
		return nil
	}
	return &PhaseError{Phase: PhaseWriteDay, Date: date, Err: err}
}

// PhaseOf reports the phase of the first PhaseError in err's chain
func PhaseOf(err error) (Phase, bool) {
	var pe *PhaseError
	if stderrors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}

// IsFatal reports whether err should fail the process.
// Per-day write, gap repair and cleanup errors are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	phase, ok := PhaseOf(err)
	if !ok {
		return true
	}
	switch phase {
	case PhaseWriteDay, PhaseCleanup, PhaseRepairGaps:
		return false
	default:
		return true
	}
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		keyvals := []interface{}{"error", err}
		if phase, ok := PhaseOf(err); ok {
			keyvals = append(keyvals, "phase", string(phase))
		}
		logger.Error("Command execution failed", keyvals...)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
