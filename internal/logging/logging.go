// Package logging configures the process-wide diagnostic logger. It plays
// a single place to dial verbosity and switch between text and JSON
// framing for log output, rather than scattering bare
// fmt.Println calls through the compiler, assembler and linker.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ---------------------
// ----- Constants -----
// ---------------------

// ---------------------
// ----- functions -----
// ---------------------

// log is the package-level logger. It holds no compilation state, only
// formatting/output config, so sharing it across a process is safe.
var log = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// Configure sets the logger's verbosity from a --debug <N> level (0-4,
// clamped) and switches to JSON framing when json is true (cmd/compile
// passes its --trace flag).
func Configure(level int, json bool) {
	switch {
	case level <= 0:
		log.SetLevel(logrus.ErrorLevel)
	case level == 1:
		log.SetLevel(logrus.WarnLevel)
	case level == 2:
		log.SetLevel(logrus.InfoLevel)
	case level == 3:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.TraceLevel)
	}
	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
}

// Logger returns the shared logger instance.
func Logger() *logrus.Logger {
	return log
}

// Fields is a convenience alias for structured log fields.
type Fields = logrus.Fields
