// Package logger provides leveled logging for hybridrag.
// Debug, Info and Section output only appear in verbose mode; warnings are
// always written.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr

	debugTag   = color.New(color.FgHiBlack).SprintFunc()
	infoTag    = color.New(color.FgCyan).SprintFunc()
	warnTag    = color.New(color.FgYellow, color.Bold).SprintFunc()
	sectionTag = color.New(color.Bold).SprintFunc()
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the writer for all log output. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, debugTag("[DEBUG]")+" "+format+"\n", args...)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, infoTag("[INFO]")+" "+format+"\n", args...)
	}
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n%s\n", sectionTag("=== "+name+" ==="))
	}
}

// Warn prints a warning regardless of verbose mode.
func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	fmt.Fprintf(output, warnTag("[WARN]")+" "+format+"\n", args...)
}
