package cli

import (
	"context"
	"errors"
)

// Process exit codes.
const (
	ExitOK    = 0
	ExitError = 1
)

var (
	// ErrDeclined is returned when the user answers the confirmation with no.
	ErrDeclined = errors.New("run declined")

	errConfig = errors.New("configuration error")
)

// ExitCode maps a command error to the process exit code. Declining the
// confirmation and interrupting the run are graceful exits.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrDeclined), errors.Is(err, context.Canceled):
		return ExitOK
	default:
		return ExitError
	}
}
