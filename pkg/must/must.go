// Package must provides small helpers for reporting errors from operations
// whose failure is worth logging but not worth aborting the calling
// operation over (closing a file, removing a temporary, etc.).
package must

import (
	"fmt"
	"io"
	"os"

	"github.com/dirscansync/dirscansync/pkg/logging"
)

// Fprint writes a value to w, logging (rather than returning) any failure.
func Fprint(w io.Writer, logger *logging.Logger, a ...interface{}) {
	s := fmt.Sprint(a...)
	n, err := fmt.Fprint(w, s)
	if err != nil {
		logger.Warnf("unable to write %q: %s", s, err.Error())
		return
	}
	if n < len(s) {
		logger.Warnf("short write for %q: wrote %d of %d bytes", s, n, len(s))
	}
}

// Close closes c, logging (rather than returning) any failure.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// OSRemove removes the named file, logging (rather than returning) any
// failure.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warnf("unable to remove %q: %s", name, err.Error())
	}
}

// Succeed logs a failure from a best-effort task without propagating it.
func Succeed(err error, task string, logger *logging.Logger) {
	if err != nil {
		logger.Warnf("unable to %s: %s", task, err.Error())
	}
}
