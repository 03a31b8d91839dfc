package execmd

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/Robpol86/robutils/common"
	"github.com/Robpol86/robutils/logger"
)

// Coordinator is the process-wide registry of active monitors and the
// owner of the shared interrupt signal. The host program calls Shutdown
// once when it is ending; every in-flight monitor gets a bounded window to
// exit cleanly, then any child processes still alive are killed and reaped
// so none are orphaned or left defunct.
//
// Jobs use the package default coordinator unless bound to another one
// with WithCoordinator.
type Coordinator struct {
	mu        sync.Mutex
	monitors  map[string]*monitor
	interrupt chan struct{}
	once      sync.Once
}

var defaultCoordinator = NewCoordinator()

// NewCoordinator creates an independent coordinator. Most programs only
// need Default; separate coordinators exist so embedders can own the
// lifecycle explicitly (and so tests can shut down in isolation).
func NewCoordinator() *Coordinator {
	return &Coordinator{
		monitors:  make(map[string]*monitor),
		interrupt: make(chan struct{}),
	}
}

// Default returns the package-wide coordinator.
func Default() *Coordinator {
	return defaultCoordinator
}

// Interrupted returns the channel closed when shutdown begins. Monitors
// check it at the top of every poll iteration; it is a broadcast-once
// signal that is never cleared.
func (c *Coordinator) Interrupted() <-chan struct{} {
	return c.interrupt
}

// ActiveMonitors returns how many monitors are currently registered.
func (c *Coordinator) ActiveMonitors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.monitors)
}

// MonitorNames returns the names of registered monitors. Every name starts
// with common.MonitorNamePrefix, which is how this library's tasks are told
// apart from any other goroutines the host program runs.
func (c *Coordinator) MonitorNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.monitors))
	for name := range c.monitors {
		names = append(names, name)
	}
	return names
}

func (c *Coordinator) register(m *monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitors[m.name] = m
}

func (c *Coordinator) deregister(m *monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.monitors, m.name)
}

// Shutdown broadcasts the interrupt to all active monitors, waits roughly
// one second across a fixed backoff schedule for them to deregister, then
// unconditionally kills and reaps any remaining child processes of this
// process. Safe to call more than once.
func (c *Coordinator) Shutdown() {
	if c.ActiveMonitors() > 0 {
		c.once.Do(func() { close(c.interrupt) })
		for _, pause := range common.ShutdownBackoff {
			if c.ActiveMonitors() == 0 {
				break
			}
			time.Sleep(pause)
		}
		if n := c.ActiveMonitors(); n > 0 {
			logger.Log.Warnf("%d monitor(s) did not exit within the shutdown grace period: %s",
				n, strings.Join(c.MonitorNames(), ", "))
		}
	}

	// Safety net, independent of monitor cooperation: a monitor blocked in
	// a system call still must not leave an orphan or a zombie behind.
	reapChildren()
}

// reapChildren force-kills every remaining live child of this process and
// waits on each to keep the process table clean. Failures mean the child
// is already gone and are ignored.
func reapChildren() {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}
	children, err := self.Children()
	if err != nil {
		// process.ErrorNoChildren, typically.
		return
	}
	for _, child := range children {
		if err := child.Kill(); err != nil {
			logger.Log.Debugf("kill of child pid %d failed: %v", child.Pid, err)
		}
		var status unix.WaitStatus
		_, _ = unix.Wait4(int(child.Pid), &status, unix.WUNTRACED, nil)
	}
}
