// Package instance guarantees a single running instance of a program using
// a locking PID file. The PID of this process is written to the file under
// an exclusive flock; a second instance observes the live PID and backs off.
package instance

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/Robpol86/robutils/common"
	"github.com/Robpol86/robutils/logger"
)

const livenessPoll = 500 * time.Millisecond

// Instance is the result of attempting to become the single running
// instance. Check Acquired; the other fields explain a failure.
type Instance struct {
	// PID of this process.
	PID int
	// PIDFile path the lock was attempted on.
	PIDFile string
	// ParentDirExists reports whether the PID file's directory exists.
	ParentDirExists bool
	// FileExists reports whether a PID file was already present.
	FileExists bool
	// CanWrite reports whether the PID file (or its directory) is writable.
	CanWrite bool
	// OldPIDAlive reports whether the previously recorded PID is a live
	// process.
	OldPIDAlive bool
	// Acquired is true when the lock was obtained and this is the only
	// instance.
	Acquired bool

	file *os.File
}

// New attempts to acquire the PID file lock. If wait > 0 and a previous
// instance is alive, New blocks up to that long for it to exit before
// giving up.
func New(pidFile string, wait time.Duration) *Instance {
	inst := &Instance{PID: os.Getpid(), PIDFile: pidFile}

	dir := filepath.Dir(pidFile)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		inst.ParentDirExists = true
	}
	if _, err := os.Stat(pidFile); err == nil {
		inst.FileExists = true
	}
	if inst.FileExists {
		inst.CanWrite = unix.Access(pidFile, unix.W_OK|unix.R_OK) == nil
	} else if inst.ParentDirExists {
		inst.CanWrite = unix.Access(dir, unix.W_OK) == nil
	}

	var oldPID int
	if inst.FileExists && inst.CanWrite {
		if content, err := os.ReadFile(pidFile); err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(content))); err == nil {
				oldPID = pid
				inst.OldPIDAlive = pidAlive(pid)
			}
		}
	}

	if inst.OldPIDAlive && wait > 0 {
		deadline := time.Now().Add(wait)
		for pidAlive(oldPID) && time.Now().Before(deadline) {
			time.Sleep(livenessPoll)
		}
		inst.OldPIDAlive = pidAlive(oldPID)
	}

	if inst.OldPIDAlive || !inst.CanWrite {
		return inst
	}

	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(common.FileMode0644))
	if err != nil {
		logger.Log.Debugf("could not open pid file %s: %v", pidFile, err)
		return inst
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		// Lost the race to another starting instance.
		_ = f.Close()
		return inst
	}
	if _, err := f.WriteString(strconv.Itoa(inst.PID)); err != nil {
		_ = f.Close()
		return inst
	}
	_ = f.Sync()

	inst.file = f
	inst.Acquired = true
	return inst
}

// Release unlocks and removes the PID file. Call it when the program ends;
// a no-op if the lock was never acquired.
func (inst *Instance) Release() {
	if inst.file == nil {
		return
	}
	_ = unix.Flock(int(inst.file.Fd()), unix.LOCK_UN)
	_ = os.Remove(inst.file.Name())
	_ = inst.file.Close()
	inst.file = nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}
