package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options describes where and how the process logger writes.
type Options struct {
	Level      string
	Format     string
	File       string // empty logs to stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Open builds a Logger from opts. The returned closer releases the rotating
// file, if one was opened; it is a no-op for stderr.
func Open(opts Options) (Logger, io.Closer, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := parseFormat(opts.Format)
	if err != nil {
		return nil, nil, err
	}

	if opts.File == "" {
		return New(level, format, os.Stderr), nopCloser{}, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return New(level, format, io.MultiWriter(os.Stderr, rotator)), rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
