package execmd

// backend is the capability surface a monitor needs from an execution
// backend. Local processes and remote SSH sessions both satisfy it; the
// monitor itself never distinguishes the two beyond these calls.
type backend interface {
	// finished reports, without blocking, whether the underlying process
	// or session has ended.
	finished() bool

	// requestGracefulStop asks the process to terminate voluntarily
	// (SIGTERM locally, session close remotely). Errors from a process
	// that already exited are expected and swallowed by the caller.
	requestGracefulStop() error

	// requestForcedStop terminates unconditionally (SIGKILL locally; for
	// remote sessions there is no stronger action than closing the
	// session again).
	requestForcedStop() error

	// drainOutput moves any currently available output into the Job's
	// buffers without blocking for more.
	drainOutput()

	// finalize performs the final output drain, releases all OS
	// resources, and returns the command's exit code. Only valid once
	// finished reports true.
	finalize() int
}
