// Package message renders tag-based color markup for terminals and
// centralizes a program's exit messages. Text like "[red]fail[/all]" is
// translated to ANSI escape codes when writing to a terminal and stripped
// otherwise, so the same string works for consoles, logs and mail bodies.
package message

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/Robpol86/robutils/logger"
)

// tags maps markup tag names to ANSI SGR codes. Same vocabulary for
// foregrounds, bright ("hi") variants, backgrounds ("bg") and attributes.
var tags = map[string]int{
	"b": 1, "i": 3, "u": 4, "flash": 5, "outline": 6, "negative": 7,
	"invis": 8, "strike": 9,
	"/all": 0, "/attr": 10, "/b": 22, "/i": 23, "/u": 24, "/flash": 25,
	"/outline": 26, "/negative": 27, "/strike": 29, "/fg": 39, "/bg": 49,
	"black": 30, "red": 31, "green": 32, "brown": 33, "blue": 34,
	"purple": 35, "cyan": 36, "gray": 37,
	"bgblack": 40, "bgred": 41, "bggreen": 42, "bgbrown": 43, "bgblue": 44,
	"bgpurple": 45, "bgcyan": 46, "bggray": 47,
	"hiblack": 90, "hired": 91, "higreen": 92, "hibrown": 93, "hiblue": 94,
	"hipurple": 95, "hicyan": 96, "higray": 97,
	"hibgblack": 100, "hibgred": 101, "hibggreen": 102, "hibgbrown": 103,
	"hibgblue": 104, "hibgpurple": 105, "hibgcyan": 106, "hibggray": 107,
	"pink": 95, "yellow": 93, "white": 97, "bgyellow": 103, "bgpink": 105,
	"bgwhite": 107,
}

var tagPattern = buildTagPattern()

func buildTagPattern() *regexp.Regexp {
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest names first so "/all" wins over a hypothetical "/a".
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	// Closing tags like [/red] reset the foreground; they are folded to
	// their opening tag's family below.
	return regexp.MustCompile(`\[(/?(?:` + strings.Join(names, "|") + `))\]`)
}

// Render translates markup tags in s to ANSI escapes.
func Render(s string) string {
	return tagPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if code, ok := tags[name]; ok {
			return fmt.Sprintf("\x1b[%dm", code)
		}
		// [/red], [/bgblue] etc.: closing an unknown color tag resets
		// the matching plane.
		if strings.HasPrefix(name, "/") {
			base := name[1:]
			if code, ok := tags[base]; ok {
				switch {
				case code >= 40 && code <= 47, code >= 100 && code <= 107:
					return "\x1b[49m"
				case code >= 30 && code <= 37, code >= 90 && code <= 97:
					return "\x1b[39m"
				}
			}
		}
		return match
	})
}

// Strip removes all markup tags from s without rendering them.
func Strip(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// Message prints markup text, remembers exit-code messages and quits with
// them. The zero value is not usable; use New.
type Message struct {
	// Retcodes maps an exit code to the message printed by Quit. Populate
	// it near the top of the program so all exit messages live together.
	Retcodes map[int]string

	quiet  bool
	stdout io.Writer
	stderr io.Writer
	isTTY  bool
}

// NewOption configures a Message.
type NewOption func(*Message)

// Quiet suppresses all terminal output (logging still works at the
// call sites that use the logger directly).
func Quiet() NewOption {
	return func(m *Message) { m.quiet = true }
}

// New creates a Message writing to stdout/stderr, rendering color only
// when stdout is a terminal.
func New(opts ...NewOption) *Message {
	m := &Message{
		Retcodes: make(map[int]string),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		isTTY:    term.IsTerminal(int(os.Stdout.Fd())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Print writes one markup line to stdout.
func (m *Message) Print(s string) {
	m.write(m.stdout, s)
}

// PrintErr writes one markup line to stderr.
func (m *Message) PrintErr(s string) {
	m.write(m.stderr, s)
}

// PrintInline writes markup text to stdout without a trailing newline, for
// status lines repainted in place with a leading carriage return.
func (m *Message) PrintInline(s string) {
	if m.quiet {
		return
	}
	if m.isTTY {
		fmt.Fprint(m.stdout, Render(s))
	} else {
		fmt.Fprint(m.stdout, Strip(s))
	}
}

func (m *Message) write(w io.Writer, s string) {
	if m.quiet {
		return
	}
	if m.isTTY {
		fmt.Fprintln(w, Render(s))
	} else {
		fmt.Fprintln(w, Strip(s))
	}
}

// Quit prints the message registered for code (if any) and exits the
// process with that code.
func (m *Message) Quit(code int) {
	if text, ok := m.Retcodes[code]; ok {
		if code == 0 {
			m.Print(text)
		} else {
			m.PrintErr("QUITTING: " + text)
			logger.Log.Error(Strip(text))
		}
	}
	os.Exit(code)
}
