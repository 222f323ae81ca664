package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Warning prints a warning message to standard error.
func Warning(message string) {
	fmt.Fprintln(color.Error, color.YellowString("Warning:"), message)
}

// Error prints an error message to standard error.
func Error(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
}

// Fatal prints an error message to standard error and terminates the process
// with exit code 1 (the generic "non-zero on fatal store errors" case).
func Fatal(err error) {
	Error(err)
	os.Exit(1)
}

// FatalWithCode prints an error message to standard error and terminates the
// process with the given exit code. Used for the scan tool's exit code 2
// (configuration/I-O error at startup).
func FatalWithCode(err error, code int) {
	Error(err)
	os.Exit(code)
}
