package execmd

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrJobReused is returned when a Job that was already started is run
// again. A Job carries the result of exactly one execution.
var ErrJobReused = errors.New("job has already been started; create a new Job to run another command")

// SpawnError means a local command could not be launched at all: the
// working directory does not exist or the executable could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
