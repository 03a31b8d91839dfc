// Package execmd runs external commands, locally or over SSH, and monitors
// them in the background. Each Job wraps a single command execution: the
// caller starts it once, then polls the Job's accessors or waits on Done()
// for the outcome. A background monitor owns the Job until it reaches a
// terminal state, applying the configured timeout with a graceful-then-forced
// stop escalation.
package execmd

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// State describes where a Job is in its lifecycle.
type State int

const (
	// StateCreated means the Job has been constructed but not started.
	StateCreated State = iota
	// StateRunning means the process or remote session is live.
	StateRunning
	// StateTimedOut means the Job ended after a stop was issued for
	// exceeding its timeout.
	StateTimedOut
	// StateCompleted means the process exited on its own.
	StateCompleted
	// StateConnectionFailed means the remote session could not be
	// established; no process was ever started.
	StateConnectionFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateTimedOut:
		return "TimedOut"
	case StateCompleted:
		return "Completed"
	case StateConnectionFailed:
		return "ConnectionFailed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further state transitions are possible.
func (s State) Terminal() bool {
	return s == StateTimedOut || s == StateCompleted || s == StateConnectionFailed
}

// Job is one execution attempt of an external command. A Job may only be
// started once; create a new Job to run another command. All read accessors
// are safe to call at any time, but their values are stable and complete
// only once State() is terminal (signalled by Done()).
type Job struct {
	mu sync.RWMutex

	args     []string // argv mode: executed without shell interpretation
	shellCmd string   // shell mode: executed through /bin/sh -c
	timeout  time.Duration

	started     bool
	state       State
	exitCode    int
	hasExitCode bool
	stdout      bytes.Buffer
	stderr      bytes.Buffer
	startTime   time.Time
	endTime     time.Time
	pid         int
	connErr     error

	coord *Coordinator
	done  chan struct{}
}

// Option configures a Job at construction time.
type Option func(*Job)

// WithCoordinator binds the Job's monitor to a specific shutdown
// coordinator instead of the package default.
func WithCoordinator(c *Coordinator) Option {
	return func(j *Job) {
		j.coord = c
	}
}

// NewJob creates a Job for an argument vector. The arguments are passed to
// the executable verbatim; no shell is involved. A timeout of 0 means the
// command may run forever.
func NewJob(args []string, timeout time.Duration, opts ...Option) *Job {
	j := newJob(timeout, opts)
	j.args = args
	return j
}

// NewShellJob creates a Job whose command string is handed to an
// interactive shell, so pipes, redirection and chaining work as they would
// on a command line. Quoting is entirely the caller's responsibility.
func NewShellJob(command string, timeout time.Duration, opts ...Option) *Job {
	j := newJob(timeout, opts)
	j.shellCmd = command
	return j
}

func newJob(timeout time.Duration, opts []Option) *Job {
	if timeout < 0 {
		timeout = 0
	}
	j := &Job{
		timeout: timeout,
		state:   StateCreated,
		coord:   defaultCoordinator,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// State returns the Job's current lifecycle state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// ExitCode returns the command's exit code. The second return is false
// until the Job reaches StateCompleted or StateTimedOut.
func (j *Job) ExitCode() (int, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.exitCode, j.hasExitCode
}

// Stdout returns the output accumulated so far. Before the Job is finalized
// this is an advisory snapshot; afterwards it is the complete output.
func (j *Job) Stdout() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stdout.String()
}

// Stderr returns the error output accumulated so far, with the same
// stability guarantee as Stdout.
func (j *Job) Stderr() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stderr.String()
}

// StartTime returns when the process was spawned, zero if not started.
func (j *Job) StartTime() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.startTime
}

// EndTime returns when the Job was finalized, zero until then.
func (j *Job) EndTime() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.endTime
}

// PID returns the local process identifier, 0 for remote or unstarted Jobs.
func (j *Job) PID() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.pid
}

// ConnectionError describes why a remote session could not be established.
// It is non-nil only in StateConnectionFailed.
func (j *Job) ConnectionError() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.connErr
}

// Timeout returns the wall-clock limit the Job was created with.
func (j *Job) Timeout() time.Duration {
	return j.timeout
}

// Done returns a channel closed when the Job reaches a terminal state. A
// monitor abandoned by a shutdown interrupt never closes it; callers that
// need a guaranteed terminal state must account for the coordinator's
// shutdown sequence instead.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the Job is finalized.
func (j *Job) Wait() {
	<-j.done
}

// commandLine flattens the command for logging and for remote submission,
// where a vector command is space-joined before being handed to the remote
// shell.
func (j *Job) commandLine() string {
	if j.shellCmd != "" {
		return j.shellCmd
	}
	return strings.Join(j.args, " ")
}

// claimStart marks the Job as started, enforcing single use.
func (j *Job) claimStart() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return ErrJobReused
	}
	j.started = true
	return nil
}

func (j *Job) markRunning(pid int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateRunning
	j.startTime = time.Now()
	j.pid = pid
}

func (j *Job) setConnectionFailed(err error) {
	j.mu.Lock()
	j.state = StateConnectionFailed
	j.connErr = err
	j.mu.Unlock()
	close(j.done)
}

// finalize freezes the Job's result fields. Called exactly once, by the
// monitor, after the backend has released all OS resources.
func (j *Job) finalize(exitCode int, timedOut bool) {
	j.mu.Lock()
	j.exitCode = exitCode
	j.hasExitCode = true
	j.endTime = time.Now()
	if timedOut {
		j.state = StateTimedOut
	} else {
		j.state = StateCompleted
	}
	j.mu.Unlock()
	close(j.done)
}

// jobWriter appends process output to one of the Job's buffers under the
// Job's lock, keeping live reads race free.
type jobWriter struct {
	job    *Job
	stderr bool
}

func (w *jobWriter) Write(p []byte) (int, error) {
	w.job.mu.Lock()
	defer w.job.mu.Unlock()
	if w.stderr {
		return w.job.stderr.Write(p)
	}
	return w.job.stdout.Write(p)
}
