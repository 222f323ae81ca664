package logging

import (
	"io"
	"log"
	"os"
)

// DefaultLogFileName is the log file the scan tool writes to per its error
// handling design: a single final status line goes to stdout, details go
// here.
const DefaultLogFileName = "dirscan_log.txt"

func init() {
	// Set the global logger to use standard output by default; ToFile
	// redirects it once a configuration's log file is known.
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)
}

// ToFile opens (creating if necessary, appending otherwise) the named log
// file and redirects all output through it. If verbose is true, output is
// additionally mirrored to standard output.
func ToFile(path string, verbose bool) (io.Closer, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	if verbose {
		log.SetOutput(io.MultiWriter(file, os.Stdout))
	} else {
		log.SetOutput(file)
	}
	return file, nil
}
