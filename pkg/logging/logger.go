package logging

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"sync"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end of
// a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the scan engine's leveled logger. It writes to an underlying
// destination (normally the log file named by the scan tool, dirscan_log.txt)
// and gates each call on a configured Level. It has the novel property that
// it still functions if nil, but logs nothing, so components can be handed a
// nil logger in tests without special-casing every call site. It is safe for
// concurrent use.
type Logger struct {
	// mu is held by SetLevel while it changes level. Writes do not take it;
	// they go through the standard log package, which serializes them.
	mu sync.Mutex
	// level is the minimum level at which a message is emitted.
	level Level
	// prefix is any prefix specified for the logger.
	prefix string
}

// RootLogger is the root logger from which all other loggers derive. It
// defaults to LevelWarning, matching the scan tool's default `-l` flag.
var RootLogger = &Logger{level: LevelWarning}

// New creates a root logger at the given level. It writes wherever the
// standard log package's output currently points (see ToFile).
func New(level Level) *Logger {
	return &Logger{level: level}
}

// SetLevel adjusts the minimum level at which this logger emits messages.
// Subloggers copy their parent's level when they are created, so subloggers
// that already exist keep their old level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Sublogger creates a new sublogger with the specified name, inheriting the
// parent's level.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{level: l.level, prefix: prefix}
}

// enabled reports whether a message at the given level should be emitted.
func (l *Logger) enabled(level Level) bool {
	return l != nil && level <= l.level
}

// output is the internal logging method.
func (l *Logger) output(level Level, line string) {
	if !l.enabled(level) {
		return
	}
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(3, fmt.Sprintf("%s: %s", level, line))
}

// Critf logs a run-aborting error.
func (l *Logger) Critf(format string, v ...interface{}) {
	if l != nil {
		l.output(LevelCritical, color.RedString("%s", fmt.Sprintf(format, v...)))
	}
}

// Errorf logs an error (path-level or batch-level).
func (l *Logger) Errorf(format string, v ...interface{}) {
	if l != nil {
		l.output(LevelError, color.RedString("%s", fmt.Sprintf(format, v...)))
	}
}

// Warnf logs a non-fatal warning.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l != nil {
		l.output(LevelWarning, color.YellowString("%s", fmt.Sprintf(format, v...)))
	}
}

// Infof logs basic execution information.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil {
		l.output(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Debugf logs detailed execution information.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil {
		l.output(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that writes lines at LevelInfo. Useful for
// wiring the verbose progress printer into the same logger.
func (l *Logger) Writer() io.Writer {
	if l == nil {
		return ioutil.Discard
	}
	return &writer{callback: func(s string) { l.Infof("%s", s) }}
}
