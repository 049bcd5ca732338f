package debug

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (session lifecycle, terminal outcomes)
	LevelLive    = 2 // Live info (phase changes, shots, device switches)
	LevelVerbose = 3 // Verbose (worker operations, processing details)
	LevelTrace   = 4 // Trace (GPIO, capture backend, very low level)
)

var (
	level  int
	logger *logrus.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (session lifecycle, results)
// 2 = live info (phase transitions, captures, device switches)
// 3 = verbose (hardware worker ops, frame processing)
// 4 = trace (GPIO, capture backend, very low level)
func Init(debugLevel int) {
	level = debugLevel
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	switch {
	case level <= LevelOff:
		logger.SetOutput(io.Discard)
	case level >= LevelTrace:
		logger.SetLevel(logrus.TraceLevel)
	case level >= LevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput redirects debug output, e.g. to a MultiWriter that also
// feeds the web status stream.
func SetOutput(w io.Writer) {
	if logger != nil && level > LevelOff {
		logger.SetOutput(w)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		logger.Info("═══════════════════════════════════════")
		logger.Infof("  %s", title)
		logger.Info("═══════════════════════════════════════")
	}
}

// Session prints session lifecycle info (level 1).
func Session(id, msg string) {
	if level >= LevelInfo && logger != nil {
		logger.WithField("session", id).Info(msg)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		logger.Infof("  %s = %v", name, value)
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		logger.Infof(format, args...)
	}
}

// State prints a sequencer phase change (level 2).
func State(phase string) {
	if level >= LevelLive && logger != nil {
		logger.WithField("phase", phase).Info("sequencer phase")
	}
}

// Shot prints a photo capture (level 2).
func Shot(position string, size int) {
	if level >= LevelLive && logger != nil {
		logger.WithFields(logrus.Fields{"position": position, "bytes": size}).Info("photo captured")
	}
}

// Switch prints a camera device switch (level 2).
func Switch(position string) {
	if level >= LevelLive && logger != nil {
		logger.WithField("position", position).Info("switching camera device")
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf(format, args...)
	}
}

// Print prints a level 3 message (alias for Verbose).
func Print(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Printf is an alias for Print for compatibility.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Debugf("  %s", name)
		logger.Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		logger.Debugf("Step %d: %s", num, description)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO, backends).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		logger.Tracef("GPIO %s pin=%d value=%v", operation, pin, value)
	}
}

// HW prints a hardware worker operation (level 4).
func HW(operation, detail string) {
	if level >= LevelTrace && logger != nil {
		logger.WithField("op", operation).Trace(detail)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		logger.WithError(err).Error("error")
	}
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if level > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
