package logger

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	resetColorCode         = 0
	defaultFieldSeparator  = " | "
	defaultTimestampFormat = time.RFC3339
)

// LevelNameDisplayMode defines how log level names are displayed.
type LevelNameDisplayMode int

const (
	// ShowAll shows all level names.
	ShowAll LevelNameDisplayMode = iota
	// ShowAboveWarn shows level names for WARN, ERROR, FATAL, PANIC.
	ShowAboveWarn
	// HideAll hides all level names.
	HideAll
)

// Formatter implements logrus.Formatter with colorized levels and ordered
// fields.
type Formatter struct {
	// TimestampFormat specifies the timestamp layout. Default: time.RFC3339.
	TimestampFormat string
	// NoColors disables colorized output (file logs).
	NoColors bool
	// DisableTimestamp disables timestamp output.
	DisableTimestamp bool
	// DisplayLevelName configures which level names are printed.
	DisplayLevelName LevelNameDisplayMode
	// FieldsOrder lists field keys to display first, in order. Remaining
	// fields are appended alphabetically.
	FieldsOrder []string
	// FieldSeparator separates fields. Default: " | ".
	FieldSeparator string
	// CallerFormatter renders caller information when report-caller is on.
	CallerFormatter func(*runtime.Frame) string
}

// Format formats the log entry.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}

	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = defaultTimestampFormat
		}
		b.WriteString(entry.Time.Format(layout))
		b.WriteString(" ")
	}

	showLevel := false
	switch f.DisplayLevelName {
	case ShowAll:
		showLevel = true
	case ShowAboveWarn:
		showLevel = entry.Level <= logrus.WarnLevel
	}

	if showLevel {
		if !f.NoColors {
			fmt.Fprintf(b, "\x1b[%dm", colorByLevel(entry.Level))
		}
		name := entry.Level.String()
		if len(name) > 4 {
			name = name[:4]
		}
		fmt.Fprintf(b, "[%s]", strings.ToUpper(name))
		if !f.NoColors {
			fmt.Fprintf(b, "\x1b[%dm", resetColorCode)
		}
		b.WriteString(" ")
	}

	if len(entry.Data) > 0 {
		b.WriteString("[")
		f.writeFields(b, entry)
		b.WriteString("] ")
	}

	b.WriteString(entry.Message)

	if f.CallerFormatter != nil && entry.HasCaller() {
		fmt.Fprint(b, f.CallerFormatter(entry.Caller))
	} else if entry.HasCaller() {
		fmt.Fprintf(b, " (%s:%d)", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *Formatter) writeFields(b *bytes.Buffer, entry *logrus.Entry) {
	separator := f.FieldSeparator
	if separator == "" {
		separator = defaultFieldSeparator
	}

	written := 0
	ordered := make(map[string]bool, len(f.FieldsOrder))
	for _, key := range f.FieldsOrder {
		value, ok := entry.Data[key]
		if !ok {
			continue
		}
		if written > 0 {
			b.WriteString(separator)
		}
		fmt.Fprintf(b, "%s:%v", key, value)
		ordered[key] = true
		written++
	}

	remaining := make([]string, 0, len(entry.Data)-written)
	for key := range entry.Data {
		if !ordered[key] {
			remaining = append(remaining, key)
		}
	}
	sort.Strings(remaining)
	for _, key := range remaining {
		if written > 0 {
			b.WriteString(separator)
		}
		fmt.Fprintf(b, "%s:%v", key, entry.Data[key])
		written++
	}
}

const (
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 36
	colorGray   = 37
)

func colorByLevel(level logrus.Level) int {
	switch level {
	case logrus.TraceLevel:
		return colorGray
	case logrus.DebugLevel:
		return colorBlue
	case logrus.WarnLevel:
		return colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed
	default:
		return colorGray
	}
}
