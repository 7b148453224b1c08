// Package logging routes spatialimg progress messages through the standard
// log package, optionally into a rotating log file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/natefinch/lumberjack"
)

// LogConfig describes where log messages should be written
type LogConfig struct {
	// Logfile is the path of the rotating log file. Empty means stderr.
	Logfile string `yaml:"file" toml:"file"`

	// MaxSize is the size in megabytes before the log file is rotated
	MaxSize int `yaml:"maxSize" toml:"max_log_size"`

	// MaxAge is the number of days rotated files are kept
	MaxAge int `yaml:"maxAge" toml:"max_log_age"`
}

var verbose atomic.Bool

// SetLogger creates a logger that saves to a rotating log file.
// It returns a closer for the file, or a no-op closer when logging to stderr.
func (c *LogConfig) SetLogger() io.Closer {
	if c == nil || c.Logfile == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(l)
	return l
}

// SetVerbose enables or disables debug messages
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Debugf writes a DEBUG message when verbose logging is enabled
func Debugf(format string, args ...interface{}) {
	if verbose.Load() {
		log.Printf("DEBUG "+format, args...)
	}
}

// Infof writes an INFO message
func Infof(format string, args ...interface{}) {
	log.Printf("INFO "+format, args...)
}

// Warningf writes a WARNING message
func Warningf(format string, args ...interface{}) {
	log.Printf("WARNING "+format, args...)
}

// Errorf writes an ERROR message
func Errorf(format string, args ...interface{}) {
	log.Printf("ERROR "+format, args...)
}
