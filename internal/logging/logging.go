// Package logging builds the component loggers used across CrewFlo.
//
// Every component logs through a standard *log.Logger prefixed with its
// name, e.g. "[sync] ". All loggers of a process share one Sink: a rotating
// file when a log file is configured, stderr in verbose mode, or nothing.
package logging

import (
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a Sink.
type Options struct {
	// File enables a rotating log file
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Verbose also writes to Stderr
	Verbose bool
	Stderr  io.Writer
}

// Sink is the shared destination of component loggers.
type Sink struct {
	w    io.Writer
	file *lumberjack.Logger
	mu   sync.Mutex
}

// Open creates a Sink.
func Open(opts Options) *Sink {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	s := &Sink{}
	var writers []io.Writer
	if opts.File != "" {
		s.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, s.file)
	}
	if opts.Verbose {
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		s.w = io.Discard
	case 1:
		s.w = writers[0]
	default:
		s.w = io.MultiWriter(writers...)
	}
	return s
}

// Logger returns a logger for component.
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Writer returns the underlying writer.
func (s *Sink) Writer() io.Writer {
	return s.w
}

// Rotate starts a new log file. It is a no-op without a log file.
func (s *Sink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Rotate()
}

// Close closes the log file, if any.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
