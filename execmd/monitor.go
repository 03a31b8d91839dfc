package execmd

import (
	"time"

	"github.com/google/uuid"

	"github.com/Robpol86/robutils/common"
	"github.com/Robpol86/robutils/logger"
)

// monitor supervises one running Job. It polls the backend at a fixed
// interval, applies the timeout escalation policy, and finalizes the Job
// when the underlying process or session ends. Exactly one monitor exists
// per started Job.
type monitor struct {
	name    string
	job     *Job
	backend backend
	coord   *Coordinator
}

func newMonitor(job *Job, b backend) *monitor {
	return &monitor{
		name:    common.MonitorNamePrefix + uuid.NewString(),
		job:     job,
		backend: b,
		coord:   job.coord,
	}
}

func (m *monitor) start() {
	m.coord.register(m)
	go m.run()
}

func (m *monitor) run() {
	log := logger.Log.WithMonitor(m.name)

	stopIssued := false
	forced := false
	var stopTime time.Time

	for !m.backend.finished() {
		select {
		case <-m.coord.Interrupted():
			// Cooperative abort: leave the Job as-is without
			// finalizing. The coordinator's shutdown sequence reaps
			// whatever process is left behind.
			log.Debug("interrupt received, abandoning job")
			m.coord.deregister(m)
			return
		default:
		}

		m.backend.drainOutput()

		if t := m.job.timeout; t > 0 && time.Since(m.job.StartTime()) >= t {
			if !stopIssued {
				stopIssued = true
				stopTime = time.Now()
				if err := m.backend.requestGracefulStop(); err != nil {
					// Process likely exited between the check and the
					// signal. Expected race.
					log.Debugf("graceful stop request failed: %v", err)
				}
			} else if !forced && time.Since(stopTime) >= common.StopLeniency {
				forced = true
				if err := m.backend.requestForcedStop(); err != nil {
					log.Debugf("forced stop request failed: %v", err)
				}
			}
		}

		time.Sleep(common.PollInterval)
	}

	exitCode := m.backend.finalize()
	m.job.finalize(exitCode, stopIssued)
	m.coord.deregister(m)

	log.WithField(common.LogFieldJob, m.job.commandLine()).
		Debugf("job finalized: state=%s exit=%d", m.job.State(), exitCode)
}
