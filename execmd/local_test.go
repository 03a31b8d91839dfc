package execmd

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, job *Job, within time.Duration) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(within):
		t.Fatalf("job did not finish within %s; state=%s", within, job.State())
	}
}

func TestRunLocalVectorCommand(t *testing.T) {
	job := NewJob([]string{"echo", "hello", "world"}, 0)
	require.NoError(t, job.RunLocal(""))
	waitDone(t, job, 10*time.Second)

	assert.Equal(t, StateCompleted, job.State())
	code, ok := job.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello world\n", job.Stdout())
	assert.Empty(t, job.Stderr())
	assert.NotZero(t, job.PID())
	assert.False(t, job.EndTime().Before(job.StartTime()))
}

func TestRunLocalShellCommand(t *testing.T) {
	job := NewShellJob("echo a && echo b", 0)
	require.NoError(t, job.RunLocal(""))
	waitDone(t, job, 10*time.Second)

	assert.Equal(t, StateCompleted, job.State())
	code, _ := job.ExitCode()
	assert.Equal(t, 0, code)
	assert.Equal(t, "a\nb\n", job.Stdout())
}

func TestRunLocalCapturesStderr(t *testing.T) {
	job := NewShellJob("echo out && echo err >&2", 0)
	require.NoError(t, job.RunLocal(""))
	waitDone(t, job, 10*time.Second)

	assert.Equal(t, "out\n", job.Stdout())
	assert.Equal(t, "err\n", job.Stderr())
}

func TestRunLocalNonZeroExit(t *testing.T) {
	job := NewShellJob("exit 3", 0)
	require.NoError(t, job.RunLocal(""))
	waitDone(t, job, 10*time.Second)

	assert.Equal(t, StateCompleted, job.State())
	code, ok := job.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestRunLocalWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	job := NewJob([]string{"pwd"}, 0)
	require.NoError(t, job.RunLocal(dir))
	waitDone(t, job, 10*time.Second)

	assert.Equal(t, dir+"\n", job.Stdout())
}

func TestRunLocalInvalidWorkingDirectory(t *testing.T) {
	job := NewJob([]string{"true"}, 0)
	err := job.RunLocal("/this/path/does/not/exist")
	require.Error(t, err)

	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, StateCreated, job.State())
}

func TestRunLocalMissingExecutable(t *testing.T) {
	job := NewJob([]string{"a_very_unlikely_command_to_exist_xyz123"}, 0)
	err := job.RunLocal("")
	require.Error(t, err)

	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}

func TestRunLocalEmptyCommand(t *testing.T) {
	job := NewJob(nil, 0)
	err := job.RunLocal("")
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
}

func TestRunLocalSingleUse(t *testing.T) {
	job := NewJob([]string{"echo", "once"}, 0)
	require.NoError(t, job.RunLocal(""))
	assert.ErrorIs(t, job.RunLocal(""), ErrJobReused)
	waitDone(t, job, 10*time.Second)
}

func TestRunLocalTimeoutGraceful(t *testing.T) {
	// sleep exits on the first SIGTERM, so the graceful stop resolves the
	// timeout well before the forced-stop leniency.
	job := NewJob([]string{"sleep", "100"}, 500*time.Millisecond)
	require.NoError(t, job.RunLocal(""))
	waitDone(t, job, 4*time.Second)

	assert.Equal(t, StateTimedOut, job.State())
	_, ok := job.ExitCode()
	assert.True(t, ok, "exit code must be present after a timed out run")
}

func TestRunLocalTimeoutForced(t *testing.T) {
	if testing.Short() {
		t.Skip("forced-stop escalation waits out the full leniency window")
	}
	// The trap makes the shell ignore SIGTERM so only SIGKILL ends it. The
	// loop of short sleeps (rather than one long one) keeps the stdout
	// pipe from being held open long by an orphaned child after the kill.
	job := NewShellJob(`trap '' TERM; while :; do sleep 1; done`, 500*time.Millisecond)
	require.NoError(t, job.RunLocal(""))

	start := time.Now()
	waitDone(t, job, 10*time.Second)
	elapsed := time.Since(start)

	assert.Equal(t, StateTimedOut, job.State())
	assert.GreaterOrEqual(t, elapsed, 4*time.Second, "forced stop must wait out the leniency window")
}

func TestRunLocalNoTimeoutNeverStops(t *testing.T) {
	job := NewJob([]string{"sleep", "1"}, 0)
	require.NoError(t, job.RunLocal(""))
	waitDone(t, job, 10*time.Second)

	// A stop would have flipped the state to TimedOut.
	assert.Equal(t, StateCompleted, job.State())
	code, _ := job.ExitCode()
	assert.Equal(t, 0, code)
}

func TestRunLocalOutputCompleteAcrossRuns(t *testing.T) {
	want := "one\ntwo\nthree\n"
	for i := 0; i < 5; i++ {
		job := NewShellJob(`printf 'one\ntwo\nthree\n'`, 0)
		require.NoError(t, job.RunLocal(""))
		waitDone(t, job, 10*time.Second)
		require.Equal(t, want, job.Stdout(), "run %d", i)
	}
}

func TestRunLocalLargeOutput(t *testing.T) {
	job := NewShellJob("seq 1 2000", 0)
	require.NoError(t, job.RunLocal(""))
	waitDone(t, job, 10*time.Second)

	var want string
	for i := 1; i <= 2000; i++ {
		want += fmt.Sprintf("%d\n", i)
	}
	assert.Equal(t, want, job.Stdout())
}
