// Package logging builds the process logger shared by every component.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Prefix is prepended to every line, e.g. "[todovault] ".
	Prefix string
	// File, when set, receives a rotated copy of everything written to
	// stderr.
	File string
	// MaxSizeMB is the size at which File rotates. Defaults to 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Defaults to 3.
	MaxBackups int
	// Quiet drops the stderr copy.
	Quiet bool
}

// New returns a logger and a closer for the rotated file, if any.
func New(opts Options) (*log.Logger, io.Closer, error) {
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, nil, err
		}
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 10
		}
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 3
		}
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, rotated)
		closer = rotated
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}
	return log.New(out, opts.Prefix, log.LstdFlags), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
