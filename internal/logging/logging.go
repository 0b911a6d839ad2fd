// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package logging wires diagnostic logs to clog. Human-facing output (progress,
// summary) never goes through here.
package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	log "unknwon.dev/clog/v2"
)

// Logger is a printf-style leveled logger.
type Logger interface {
	Trace(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// New creates a Logger that tags every line with prefix. skip is the call
// depth used for Error so the reported caller is the one that logged.
//
//	log := logging.New("fetch", 2)
func New(prefix string, skip int) Logger {
	return &logPrefix{
		prefix: strings.ToTitle(prefix),
		skip:   skip,
	}
}

type logPrefix struct {
	prefix string
	skip   int
}

func (l *logPrefix) format(format string) string {
	if l.prefix == "" {
		return format
	}
	return fmt.Sprintf("[%s] %s", l.prefix, format)
}

func (l *logPrefix) Trace(format string, v ...interface{}) {
	log.Trace(l.format(format), v...)
}

func (l *logPrefix) Info(format string, v ...interface{}) {
	log.Info(l.format(format), v...)
}

func (l *logPrefix) Warn(format string, v ...interface{}) {
	log.Warn(l.format(format), v...)
}

func (l *logPrefix) Error(format string, v ...interface{}) {
	log.ErrorDepth(l.skip, l.format(format), v...)
}

// Options selects which clog backends are registered.
type Options struct {
	// Level is one of trace, info, warn or error; debug is read as trace.
	// Empty means info.
	Level string
	// Console turns on the console backend.
	Console bool
	// Output receives console lines. Defaults to os.Stderr so stdout stays
	// free for progress and JSON events.
	Output io.Writer
	// File, when set, adds a file backend writing to this path.
	File string
}

// ParseLevel maps a level name to a clog level.
func ParseLevel(s string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return log.LevelTrace, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	default:
		return log.LevelInfo, fmt.Errorf("unknown log level %q (expected trace, info, warn or error)", s)
	}
}

const (
	consoleName = "stderr"
	offName     = "off"
	levelOff    = log.LevelFatal + 1
	bufferSize  = 100
)

var offOnce sync.Once

// Init registers the requested backends and returns a function that flushes
// and detaches them. Without backends every message is dropped.
func Init(opts Options) (stop func(), err error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return func() {}, err
	}

	// clog prints a complaint to stdout for every message when no logger is
	// registered, so a silent sink is always present.
	offOnce.Do(func() {
		err = log.New(offName, offIniter)
	})
	if err != nil {
		return func() {}, fmt.Errorf("init logger: %w", err)
	}

	var started []string
	stop = func() {
		for _, name := range started {
			// Replacing a logger waits for it to drain.
			_ = log.New(name, offIniter)
		}
		started = nil
	}

	if opts.Console {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		if err := log.New(consoleName, writerIniter, bufferSize, writerConfig{Level: level, Writer: out}); err != nil {
			return func() {}, fmt.Errorf("init console logger: %w", err)
		}
		started = append(started, consoleName)
	}
	if opts.File != "" {
		if err := log.NewFile(bufferSize, log.FileConfig{
			Level:    level,
			Filename: opts.File,
		}); err != nil {
			stop()
			return func() {}, fmt.Errorf("init file logger: %w", err)
		}
		started = append(started, log.DefaultFileName)
	}
	return stop, nil
}

var levelColors = []func(a ...interface{}) string{
	color.New(color.FgBlue).SprintFunc(),   // Trace
	color.New(color.FgGreen).SprintFunc(),  // Info
	color.New(color.FgYellow).SprintFunc(), // Warn
	color.New(color.FgRed).SprintFunc(),    // Error
	color.New(color.FgHiRed).SprintFunc(),  // Fatal
}

type writerConfig struct {
	Level  log.Level
	Writer io.Writer
}

// writerLogger is a clog backend printing to an arbitrary writer. clog's own
// console backend is bound to stdout.
type writerLogger struct {
	name  string
	level log.Level
	out   *stdlog.Logger
}

func (l *writerLogger) Name() string     { return l.name }
func (l *writerLogger) Level() log.Level { return l.level }

func (l *writerLogger) Write(m log.Messager) error {
	lv := int(m.Level())
	if lv < 0 || lv >= len(levelColors) {
		l.out.Print(m.String())
		return nil
	}
	l.out.Print(levelColors[lv](m.String()))
	return nil
}

func writerIniter(name string, vs ...interface{}) (log.Logger, error) {
	cfg := writerConfig{Writer: os.Stderr}
	for _, v := range vs {
		if c, ok := v.(writerConfig); ok {
			cfg = c
		}
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("logger %q has no writer", name)
	}
	return &writerLogger{
		name:  name,
		level: cfg.Level,
		out:   stdlog.New(cfg.Writer, "", stdlog.Ldate|stdlog.Ltime),
	}, nil
}

func offIniter(name string, _ ...interface{}) (log.Logger, error) {
	return &writerLogger{name: name, level: levelOff, out: stdlog.New(io.Discard, "", 0)}, nil
}
