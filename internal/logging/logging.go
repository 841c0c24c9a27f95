// Package logging builds the process logger and a notifier that surfaces
// collection notifications on a terminal.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Rotation defaults for the log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 28
)

// Config defines the logger options.
type Config struct {
	// Level is one of debug, info, warn (or warning) and error. Anything else
	// means info.
	Level string

	// File, when set, receives JSON logs rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool

	// Console renders human-readable lines on Out instead of JSON.
	Console bool

	// Out is the terminal writer. Nil means stderr.
	Out io.Writer

	// Quiet disables the terminal writer; only File is written.
	Quiet bool
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// New builds a logger from cfg. The returned closer releases the log file
// and is never nil.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = DefaultMaxSizeMB
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = DefaultMaxBackups
	}
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	if !cfg.Quiet {
		if cfg.Console {
			writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
		} else {
			writers = append(writers, out)
		}
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     DefaultMaxAgeDays, // days
			Compress:   cfg.Compress,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if len(writers) == 0 {
		return zerolog.Nop(), closer
	}

	level := ParseLevel(cfg.Level)
	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Notifier prints notifications as single lines on a writer and records
// them in the log.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

// NewNotifier returns a Notifier writing to out. Nil out means stderr.
func NewNotifier(out io.Writer, log zerolog.Logger) *Notifier {
	if out == nil {
		out = os.Stderr
	}
	return &Notifier{out: out, log: log}
}

// Notify implements types.Notifier.
func (n *Notifier) Notify(level types.NoticeLevel, message string) {
	n.mu.Lock()
	fmt.Fprintf(n.out, "%s: %s\n", level, message)
	n.mu.Unlock()

	var ev *zerolog.Event
	switch level {
	case types.NoticeError:
		ev = n.log.Error()
	case types.NoticeWarning:
		ev = n.log.Warn()
	default:
		ev = n.log.Info()
	}
	ev.Str("notice", string(level)).Msg(message)
}

var _ types.Notifier = (*Notifier)(nil)
