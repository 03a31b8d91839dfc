package execmd

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"

	"github.com/Robpol86/robutils/logger"
)

// RunLocal spawns the Job's command on the local machine and starts its
// monitor. The spawn itself is synchronous: a missing working directory or
// an unlaunchable executable surfaces immediately as a *SpawnError. cwd may
// be empty to inherit the current directory.
func (j *Job) RunLocal(cwd string) error {
	if err := j.claimStart(); err != nil {
		return err
	}

	b, err := startLocal(j, cwd)
	if err != nil {
		return err
	}

	logger.Log.WithJob(j.commandLine()).Debugf("spawned local process, pid %d", j.PID())
	newMonitor(j, b).start()
	return nil
}

// localBackend supervises one local child process.
type localBackend struct {
	job     *Job
	cmd     *exec.Cmd
	waitErr error
	done    chan struct{}
}

func startLocal(job *Job, cwd string) (*localBackend, error) {
	if cwd != "" {
		info, err := os.Stat(cwd)
		if err != nil {
			return nil, &SpawnError{Command: job.commandLine(), Err: errors.Wrapf(err, "invalid working directory %q", cwd)}
		}
		if !info.IsDir() {
			return nil, &SpawnError{Command: job.commandLine(), Err: errors.Errorf("working directory %q is not a directory", cwd)}
		}
	}

	var cmd *exec.Cmd
	if job.shellCmd != "" {
		cmd = exec.Command("/bin/sh", "-c", job.shellCmd)
	} else {
		if len(job.args) == 0 {
			return nil, &SpawnError{Command: "", Err: errors.New("empty command")}
		}
		cmd = exec.Command(job.args[0], job.args[1:]...)
	}
	cmd.Dir = cwd
	cmd.Stdout = &jobWriter{job: job}
	cmd.Stderr = &jobWriter{job: job, stderr: true}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: job.commandLine(), Err: err}
	}
	job.markRunning(cmd.Process.Pid)

	b := &localBackend{job: job, cmd: cmd, done: make(chan struct{})}
	go func() {
		// Wait also closes the output pipes once their copiers finish,
		// so after done closes the buffers hold the full output.
		b.waitErr = cmd.Wait()
		close(b.done)
	}()
	return b, nil
}

func (b *localBackend) finished() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *localBackend) requestGracefulStop() error {
	return b.cmd.Process.Signal(syscall.SIGTERM)
}

func (b *localBackend) requestForcedStop() error {
	return b.cmd.Process.Kill()
}

// drainOutput is a no-op for local jobs: the Job's locked writers receive
// output continuously as the pipes fill.
func (b *localBackend) drainOutput() {}

func (b *localBackend) finalize() int {
	<-b.done
	if b.cmd.ProcessState != nil {
		return b.cmd.ProcessState.ExitCode()
	}
	// Wait failed before producing a state; the wait error is all we have.
	logger.Log.WithJob(b.job.commandLine()).Warnf("no process state after wait: %v", b.waitErr)
	return -1
}
