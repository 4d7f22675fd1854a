// Package logging provides the process-wide logger used across voxaid.
// It is a thin wrapper over the standard logger so callers never carry a
// logger handle around; quiet mode silences everything for clean CLI output.
package logging

import (
	"log"
	"os"
)

var (
	disabled = false
	debug    = os.Getenv("VOXAID_DEBUG") != ""
	logger   = log.New(os.Stdout, "", log.LstdFlags)
)

// Disable turns off all logging (quiet CLI mode).
func Disable() {
	disabled = true
}

// Enable turns logging back on.
func Enable() {
	disabled = false
}

// SetDebug toggles debug output at runtime (the --verbose flag).
func SetDebug(on bool) {
	debug = on
}

// Info logs an info message.
func Info(v ...any) {
	if !disabled {
		logger.Println(v...)
	}
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if !disabled {
		logger.Printf(format, v...)
	}
}

// Warn logs a warning message.
func Warn(v ...any) {
	if !disabled {
		logger.Println(append([]any{"WARN:"}, v...)...)
	}
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	if !disabled {
		logger.Printf("WARN: "+format, v...)
	}
}

// Error logs an error message.
func Error(v ...any) {
	if !disabled {
		logger.Println(append([]any{"ERROR:"}, v...)...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	if !disabled {
		logger.Printf("ERROR: "+format, v...)
	}
}

// Debugf logs a formatted debug message when VOXAID_DEBUG is set.
func Debugf(format string, v ...any) {
	if !disabled && debug {
		logger.Printf("DEBUG: "+format, v...)
	}
}
