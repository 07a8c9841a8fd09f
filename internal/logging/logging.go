// Package logging builds the component loggers used across the daemon.
//
// Every component logs through a stdlib log.Logger with a "[component] "
// prefix. When a log file is configured the output goes through a
// size-rotated file instead of stderr, so long-running registers do not
// fill their disk.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log destination.
type Options struct {
	// File receives output when non-empty; otherwise stderr is used.
	File string

	// MaxSizeMB is the rotation threshold (default 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default 3).
	MaxBackups int
}

// Sink builds the shared log writer from opts.
func Sink(opts Options) io.Writer {
	if opts.File == "" {
		return os.Stderr
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}

// Component returns a logger tagged with the component name, writing to w.
func Component(w io.Writer, name string) *log.Logger {
	return log.New(w, "["+name+"] ", log.LstdFlags)
}
