package common

import (
	"io/fs"
	"time"
)

const (
	AppName = "robutils"

	// MonitorNamePrefix tags every monitor registered with a shutdown
	// coordinator so the coordinator can enumerate exactly the monitors
	// belonging to this library among any other work the host program runs.
	MonitorNamePrefix = "robutils.execmd.monitor/"
)

// Logger field names shared across packages.
const (
	LogFieldApp     = "App"
	LogFieldJob     = "Job"
	LogFieldHost    = "Host"
	LogFieldMonitor = "Monitor"
	LogFieldPID     = "PID"
)

// Execution and shutdown timing constants. The poll interval and the
// graceful-stop leniency are fixed design constants, not configuration.
const (
	// PollInterval is how often a monitor re-checks its job for completion.
	PollInterval = 200 * time.Millisecond

	// StopLeniency is how long a monitor waits after a graceful stop
	// request before escalating to a forced stop.
	StopLeniency = 5 * time.Second

	// DefaultSSHPort is used when no port is given for a remote job.
	DefaultSSHPort = 22

	// DefaultConnectTimeout bounds SSH dial and authentication.
	DefaultConnectTimeout = 30 * time.Second
)

// ShutdownBackoff is the wait schedule the shutdown coordinator walks while
// waiting for monitors to notice the interrupt broadcast, about one second
// in total.
var ShutdownBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	350 * time.Millisecond,
	350 * time.Millisecond,
}

const (
	// FileMode0644 represents rw-r--r--
	FileMode0644 fs.FileMode = 0644
	// FileMode0600 represents rw-------
	FileMode0600 fs.FileMode = 0600
	// FileMode0755 represents rwxr-xr-x
	FileMode0755 fs.FileMode = 0755
)
