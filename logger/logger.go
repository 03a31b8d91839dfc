package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/Robpol86/robutils/common"
)

// Log is the global logger instance.
var Log *RLog

// RLog wraps *logrus.Logger for application-specific logging helpers.
type RLog struct {
	*logrus.Logger
}

func init() {
	// Console-only logger until the host program configures one.
	Log = newConsoleLogger(logrus.InfoLevel)
}

func newConsoleLogger(level logrus.Level) *RLog {
	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(os.Stdout)
	l.SetFormatter(&Formatter{
		TimestampFormat:  "15:04:05",
		DisplayLevelName: ShowAboveWarn,
		FieldsOrder:      defaultFieldsOrder(),
	})
	return &RLog{Logger: l}
}

func defaultFieldsOrder() []string {
	return []string{
		common.LogFieldApp, common.LogFieldJob, common.LogFieldHost,
		common.LogFieldMonitor, common.LogFieldPID,
	}
}

// InitGlobalLogger reconfigures the global Log. When outputPath is non-empty
// a daily-rotated log file is written there in addition to the console.
func InitGlobalLogger(outputPath string, verbose bool, defaultLevel logrus.Level) error {
	level := defaultLevel
	if verbose {
		level = logrus.DebugLevel
	}

	display := ShowAboveWarn
	if verbose {
		display = ShowAll
	}

	l := logrus.New()
	l.SetLevel(level)

	if outputPath != "" {
		if err := os.MkdirAll(outputPath, os.FileMode(common.FileMode0755)); err != nil {
			return fmt.Errorf("failed to create log output directory %s: %w", outputPath, err)
		}
		logFilePath := filepath.Join(outputPath, common.AppName+".log")

		writer, err := rotatelogs.New(
			logFilePath+".%Y%m%d",
			rotatelogs.WithLinkName(logFilePath),
			rotatelogs.WithMaxAge(7*24*time.Hour),
			rotatelogs.WithRotationTime(24*time.Hour),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize rotatelogs for %s: %w", logFilePath, err)
		}

		fileFormatter := &Formatter{
			TimestampFormat:  "2006-01-02 15:04:05.000 MST",
			NoColors:         true,
			DisplayLevelName: ShowAll,
			FieldsOrder:      defaultFieldsOrder(),
			CallerFormatter: func(frame *runtime.Frame) string {
				return fmt.Sprintf(" [%s:%d]", filepath.Base(frame.File), frame.Line)
			},
		}
		l.SetReportCaller(true)

		logWriters := lfshook.WriterMap{}
		for _, lv := range logrus.AllLevels {
			if l.IsLevelEnabled(lv) {
				logWriters[lv] = writer
			}
		}
		l.Hooks.Add(lfshook.NewHook(logWriters, fileFormatter))

		// Console output still goes through the colored formatter; the
		// hook owns the file stream.
		l.SetFormatter(&Formatter{
			TimestampFormat:  "15:04:05",
			DisplayLevelName: display,
			FieldsOrder:      defaultFieldsOrder(),
		})
		l.SetOutput(os.Stdout)
	} else {
		l.SetFormatter(&Formatter{
			TimestampFormat:  "15:04:05",
			DisplayLevelName: display,
			FieldsOrder:      defaultFieldsOrder(),
		})
		l.SetOutput(os.Stdout)
	}

	Log = &RLog{Logger: l}
	return nil
}

// SetQuiet discards all console output while keeping any file hooks active.
func (rl *RLog) SetQuiet() {
	rl.SetOutput(io.Discard)
}

// WithJob returns an entry tagged with the job's command summary.
func (rl *RLog) WithJob(job string) *logrus.Entry {
	return rl.WithField(common.LogFieldJob, job)
}

// WithMonitor returns an entry tagged with a monitor name.
func (rl *RLog) WithMonitor(name string) *logrus.Entry {
	return rl.WithField(common.LogFieldMonitor, name)
}

// WithHost returns an entry tagged with a remote host.
func (rl *RLog) WithHost(host string) *logrus.Entry {
	return rl.WithField(common.LogFieldHost, host)
}
