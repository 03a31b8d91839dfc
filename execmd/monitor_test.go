package execmd

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Robpol86/robutils/common"
)

// fakeBackend is a scriptable backend so escalation and interrupt behavior
// can be exercised without real processes.
type fakeBackend struct {
	mu        sync.Mutex
	done      bool
	graceful  int
	forced    int
	exitCode  int
	finalized int

	// stop mode: which stop request marks the backend finished.
	finishOnGraceful bool
	finishOnForced   bool
}

func (f *fakeBackend) finished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakeBackend) requestGracefulStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graceful++
	if f.finishOnGraceful {
		f.done = true
	}
	return nil
}

func (f *fakeBackend) requestForcedStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
	if f.finishOnForced {
		f.done = true
	}
	return nil
}

func (f *fakeBackend) drainOutput() {}

func (f *fakeBackend) finalize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized++
	return f.exitCode
}

func (f *fakeBackend) markDone() {
	f.mu.Lock()
	f.done = true
	f.mu.Unlock()
}

func (f *fakeBackend) counts() (graceful, forced, finalized int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.graceful, f.forced, f.finalized
}

func TestMonitorNoTimeoutNeverStops(t *testing.T) {
	coord := NewCoordinator()
	job := NewJob([]string{"fake"}, 0, WithCoordinator(coord))
	fake := &fakeBackend{exitCode: 7}

	job.markRunning(1234)
	newMonitor(job, fake).start()

	// Several poll intervals with no timeout configured.
	time.Sleep(3 * common.PollInterval)
	fake.markDone()
	waitDone(t, job, 2*time.Second)

	graceful, forced, finalized := fake.counts()
	assert.Zero(t, graceful)
	assert.Zero(t, forced)
	assert.Equal(t, 1, finalized)
	assert.Equal(t, StateCompleted, job.State())
	code, ok := job.ExitCode()
	require.True(t, ok)
	assert.Equal(t, 7, code)
	assert.Zero(t, coord.ActiveMonitors())
}

func TestMonitorGracefulStopOnTimeout(t *testing.T) {
	coord := NewCoordinator()
	job := NewJob([]string{"fake"}, 100*time.Millisecond, WithCoordinator(coord))
	fake := &fakeBackend{finishOnGraceful: true}

	job.markRunning(1234)
	newMonitor(job, fake).start()
	waitDone(t, job, 2*time.Second)

	graceful, forced, _ := fake.counts()
	assert.Equal(t, 1, graceful)
	assert.Zero(t, forced)
	assert.Equal(t, StateTimedOut, job.State())
}

func TestMonitorForcedStopEscalation(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the full stop leniency window")
	}

	coord := NewCoordinator()
	job := NewJob([]string{"fake"}, 100*time.Millisecond, WithCoordinator(coord))
	fake := &fakeBackend{finishOnForced: true}

	job.markRunning(1234)
	start := time.Now()
	newMonitor(job, fake).start()
	waitDone(t, job, common.StopLeniency+5*time.Second)

	graceful, forced, _ := fake.counts()
	assert.Equal(t, 1, graceful)
	assert.Equal(t, 1, forced)
	assert.Equal(t, StateTimedOut, job.State())
	assert.GreaterOrEqual(t, time.Since(start), common.StopLeniency)
}

func TestMonitorInterruptAbandonsJob(t *testing.T) {
	coord := NewCoordinator()
	job := NewJob([]string{"fake"}, 0, WithCoordinator(coord))
	fake := &fakeBackend{}

	job.markRunning(1234)
	newMonitor(job, fake).start()
	require.Equal(t, 1, coord.ActiveMonitors())

	coord.Shutdown()

	assert.Zero(t, coord.ActiveMonitors())
	assert.Equal(t, StateRunning, job.State())
	select {
	case <-job.Done():
		t.Fatal("abandoned job must not be finalized")
	default:
	}
	_, _, finalized := fake.counts()
	assert.Zero(t, finalized)
	_, ok := job.ExitCode()
	assert.False(t, ok)
}
