package logging

// Level represents a log level. Its value hierarchy is designed to be ordered
// and comparable by value. Names match the scan tool's `-l` flag: CRITICAL,
// ERROR, WARNING, INFO, DEBUG.
type Level uint

const (
	// LevelCritical indicates that only unrecoverable, run-aborting errors are
	// logged.
	LevelCritical Level = iota
	// LevelError indicates that errors (including per-file errors) are logged
	// in addition to critical messages.
	LevelError
	// LevelWarning indicates that non-fatal warnings (e.g. corruption
	// detection, view upgrades) are logged in addition to errors. This is the
	// default level.
	LevelWarning
	// LevelInfo indicates that basic execution information is logged in
	// addition to all of the above.
	LevelInfo
	// LevelDebug indicates that detailed execution information is logged in
	// addition to all of the above.
	LevelDebug
)

// NameToLevel converts a string-based representation of a log level to the
// appropriate Level value. It returns a boolean indicating whether or not the
// conversion was valid. If the name is invalid, LevelWarning (the CLI
// default) is returned.
func NameToLevel(name string) (Level, bool) {
	switch name {
	case "CRITICAL":
		return LevelCritical, true
	case "ERROR":
		return LevelError, true
	case "WARNING":
		return LevelWarning, true
	case "INFO":
		return LevelInfo, true
	case "DEBUG":
		return LevelDebug, true
	default:
		return LevelWarning, false
	}
}

// String provides a human-readable representation of a log level.
func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "CRITICAL"
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}
