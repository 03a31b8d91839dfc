package execmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobDefaults(t *testing.T) {
	job := NewJob([]string{"ls", "-lah", "/tmp"}, 0)

	assert.Equal(t, StateCreated, job.State())
	assert.Equal(t, time.Duration(0), job.Timeout())
	_, ok := job.ExitCode()
	assert.False(t, ok, "exit code must be absent before completion")
	assert.True(t, job.StartTime().IsZero())
	assert.True(t, job.EndTime().IsZero())
	assert.Nil(t, job.ConnectionError())

	select {
	case <-job.Done():
		t.Fatal("Done must not be closed for an unstarted job")
	default:
	}
}

func TestNewJobNegativeTimeoutClamped(t *testing.T) {
	job := NewJob([]string{"true"}, -5*time.Second)
	assert.Equal(t, time.Duration(0), job.Timeout())
}

func TestCommandLineFlattening(t *testing.T) {
	vector := NewJob([]string{"echo", "a", "b"}, 0)
	assert.Equal(t, "echo a b", vector.commandLine())

	shell := NewShellJob("echo a && echo b", 0)
	assert.Equal(t, "echo a && echo b", shell.commandLine())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "Created", StateCreated.String())
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "TimedOut", StateTimedOut.String())
	assert.Equal(t, "Completed", StateCompleted.String())
	assert.Equal(t, "ConnectionFailed", StateConnectionFailed.String())
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateCreated.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateTimedOut.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateConnectionFailed.Terminal())
}

func TestClaimStartSingleUse(t *testing.T) {
	job := NewJob([]string{"true"}, 0)
	require.NoError(t, job.claimStart())
	assert.ErrorIs(t, job.claimStart(), ErrJobReused)
}

func TestWithCoordinator(t *testing.T) {
	c := NewCoordinator()
	job := NewJob([]string{"true"}, 0, WithCoordinator(c))
	assert.Same(t, c, job.coord)

	plain := NewJob([]string{"true"}, 0)
	assert.Same(t, defaultCoordinator, plain.coord)
}

func TestFinalizeFreezesResult(t *testing.T) {
	job := NewJob([]string{"true"}, 0)
	require.NoError(t, job.claimStart())
	job.markRunning(1234)
	assert.Equal(t, StateRunning, job.State())
	assert.Equal(t, 1234, job.PID())
	assert.False(t, job.StartTime().IsZero())

	job.finalize(7, false)
	assert.Equal(t, StateCompleted, job.State())
	code, ok := job.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 7, code)
	assert.False(t, job.EndTime().IsZero())

	select {
	case <-job.Done():
	default:
		t.Fatal("Done must be closed after finalize")
	}
}

func TestFinalizeTimedOut(t *testing.T) {
	job := NewJob([]string{"true"}, time.Second)
	require.NoError(t, job.claimStart())
	job.markRunning(0)
	job.finalize(-1, true)
	assert.Equal(t, StateTimedOut, job.State())
}
