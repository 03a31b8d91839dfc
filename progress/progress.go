// Package progress renders a terminal progress bar with an optional ETA.
// Callers increment pass/fail counters as work completes; Summary builds
// the bar string. The ETA comes from an exponentially weighted moving
// average of the completion rate, so it favors recent throughput as the
// run converges.
package progress

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/Robpol86/robutils/timefmt"
)

// minSamples is how many increments must be observed before an ETA is
// offered.
const minSamples = 5

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Progress tracks completion of a fixed number of items. Safe for
// concurrent increments.
type Progress struct {
	mu sync.Mutex

	totalCount int
	passCount  int
	failCount  int

	startTime  time.Time
	lastTime   time.Time
	ewmaRate   float64 // percent per second
	samples    int
	spinnerIdx int
	finished   bool
}

// New creates a Progress for totalCount expected items. Indefinite
// progress bars are not supported.
func New(totalCount int) *Progress {
	now := time.Now()
	return &Progress{totalCount: totalCount, startTime: now, lastTime: now}
}

// IncPass records one successful item.
func (p *Progress) IncPass() {
	p.increment(false)
}

// IncFail records one failed item.
func (p *Progress) IncFail() {
	p.increment(true)
}

func (p *Progress) increment(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.passCount+p.failCount >= p.totalCount {
		return
	}
	before := p.percentLocked()
	if fail {
		p.failCount++
	} else {
		p.passCount++
	}

	now := time.Now()
	elapsed := now.Sub(p.lastTime).Seconds()
	if elapsed > 0 {
		rate := (p.percentLocked() - before) / elapsed
		// Weight recent rate more heavily as completion approaches, the
		// span shrinking from 30 observations toward 1.
		span := 100 - p.percentLocked()
		if span > 30 {
			span = 30
		}
		if span < 1 {
			span = 1
		}
		alpha := 2.0 / (span + 1.0)
		if p.samples == 0 {
			p.ewmaRate = rate
		} else {
			p.ewmaRate = alpha*rate + (1-alpha)*p.ewmaRate
		}
	}
	p.samples++
	p.lastTime = now
}

func (p *Progress) percentLocked() float64 {
	if p.totalCount == 0 {
		return 100
	}
	return float64(p.passCount+p.failCount) / float64(p.totalCount) * 100
}

// TotalPercent returns overall completion as 0-100.
func (p *Progress) TotalPercent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percentLocked()
}

// FailPercent returns the failure share of completed items as 0-100.
func (p *Progress) FailPercent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := p.passCount + p.failCount
	if done == 0 {
		return 0
	}
	return float64(p.failCount) / float64(done) * 100
}

// Counts returns (pass, fail, total).
func (p *Progress) Counts() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passCount, p.failCount, p.totalCount
}

// ETA returns the projected completion time. ok is false until enough
// increments have been observed to estimate a rate.
func (p *Progress) ETA() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.etaLocked()
}

func (p *Progress) etaLocked() (time.Time, bool) {
	if p.samples < minSamples || p.ewmaRate <= 0 {
		return time.Time{}, false
	}
	remaining := (100 - p.percentLocked()) / p.ewmaRate
	return p.lastTime.Add(time.Duration(remaining * float64(time.Second))), true
}

// SummaryOptions adjusts Summary's rendering.
type SummaryOptions struct {
	// HideFailed omits the trailing failed-count segment.
	HideFailed bool
	// MaxWidth caps the rendered line; 0 means the terminal width (or 80
	// when that is unknown).
	MaxWidth int
	// WallClockETA shows the projected completion time of day instead of
	// a countdown.
	WallClockETA bool
}

// Summary builds the progress line: percent, counts, bar, ETA and
// optionally the failure share. Once 100% has been rendered the output is
// stable on further calls.
func (p *Progress) Summary(opts SummaryOptions) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	width := opts.MaxWidth
	if width <= 0 {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		} else {
			width = 80
		}
	}

	percent := p.percentLocked()
	done := p.passCount + p.failCount
	if percent >= 100 {
		p.finished = true
	}

	var eta string
	if p.finished {
		eta = "eta 0:00:00"
	} else if when, ok := p.etaLocked(); !ok {
		eta = "eta --:--:--"
	} else if opts.WallClockETA {
		eta = "eta " + when.Format("03:04:05 PM MST")
	} else {
		eta = "eta " + timefmt.Clock(time.Until(when))
	}

	head := fmt.Sprintf("%4.0f%% (%*d/%d) ", percent, len(fmt.Sprint(p.totalCount)), done, p.totalCount)

	var tail string
	if !opts.HideFailed {
		tail = fmt.Sprintf(" - %3.0f%% (%*d/%d) failed",
			p.failPercentLocked(), len(fmt.Sprint(p.totalCount)), p.failCount, max(done, 1))
	} else if !p.finished {
		tail = " " + p.spin()
	}

	barWidth := width - len(head) - len(eta) - len(tail) - 3
	if barWidth < 4 {
		barWidth = 4
	}
	filled := int(percent / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := "[" + strings.Repeat("#", filled) + strings.Repeat(" ", barWidth-filled) + "] "

	return head + bar + eta + tail
}

// Finished reports whether a 100% summary has been rendered.
func (p *Progress) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// InlinePrinter is the sink StartRender repaints through. Satisfied by
// *message.Message.
type InlinePrinter interface {
	PrintInline(s string)
}

// StartRender repaints the summary line in place at the given interval
// (default 250 ms) until the progress reaches 100% or the returned stop
// function is called. stop blocks until the final repaint is written, then
// a newline leaves the last summary on screen.
func (p *Progress) StartRender(out InlinePrinter, interval time.Duration, opts SummaryOptions) (stop func()) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	stopCh := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			out.PrintInline("\r" + p.Summary(opts))
			if p.Finished() {
				out.PrintInline("\n")
				return
			}
			select {
			case <-stopCh:
				out.PrintInline("\n")
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		once.Do(func() { close(stopCh) })
		<-done
	}
}

func (p *Progress) failPercentLocked() float64 {
	done := p.passCount + p.failCount
	if done == 0 {
		return 0
	}
	return float64(p.failCount) / float64(done) * 100
}

func (p *Progress) spin() string {
	frame := spinnerFrames[p.spinnerIdx%len(spinnerFrames)]
	p.spinnerIdx++
	return frame
}
