// Package logging is the leveled logger used by every pipeline stage.
//
// Messages below the current mode are dropped. Output goes to stdout unless a Config with a
// log file is installed, in which case it goes to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"
)

// Mode is the minimum severity that is written.
type Mode uint32

const (
	DebugMode Mode = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

func (m Mode) String() string {
	switch m {
	case DebugMode:
		return "debug"
	case InfoMode:
		return "info"
	case WarningMode:
		return "warning"
	case ErrorMode:
		return "error"
	case SilentMode:
		return "silent"
	default:
		return fmt.Sprintf("Mode(%d)", uint32(m))
	}
}

// ParseMode parses a mode name. An empty name selects InfoMode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugMode, nil
	case "", "info":
		return InfoMode, nil
	case "warning", "warn":
		return WarningMode, nil
	case "error":
		return ErrorMode, nil
	case "silent", "off":
		return SilentMode, nil
	default:
		return InfoMode, fmt.Errorf("unknown log mode %q", s)
	}
}

// Logger is the logging surface handed to the stages.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

var (
	mode atomic.Uint32

	outMu sync.Mutex
	out   = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)
	sink  *lumberjack.Logger
)

func init() {
	mode.Store(uint32(InfoMode))
}

// SetMode sets the minimum severity written by every logger.
func SetMode(m Mode) {
	mode.Store(uint32(m))
}

// GetMode returns the current mode.
func GetMode() Mode {
	return Mode(mode.Load())
}

// SetOutput redirects all loggers to w and closes a previously installed file sink.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()

	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
	out.SetOutput(w)
}

// Config selects a rotating log file.
type Config struct {
	Logfile string `toml:"logfile"`
	MaxSize int    `toml:"max_log_size"` // megabytes
	MaxAge  int    `toml:"max_log_age"`  // days
	Level   string `toml:"level"`
}

// Setup installs the configuration. Without a log file, messages keep going to stdout.
func (c *Config) Setup() error {
	if c == nil {
		return nil
	}

	m, err := ParseMode(c.Level)
	if err != nil {
		return err
	}
	SetMode(m)

	if c.Logfile == "" {
		return nil
	}

	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}

	outMu.Lock()
	defer outMu.Unlock()
	if sink != nil {
		_ = sink.Close()
	}
	sink = l
	out.SetOutput(l)

	return nil
}

// Shutdown flushes and closes the file sink, if any, and reverts to stdout.
func Shutdown() {
	outMu.Lock()
	defer outMu.Unlock()

	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
	out.SetOutput(os.Stdout)
}

type stdLogger struct {
	prefix string
}

// Default returns the process-wide logger.
func Default() Logger {
	return stdLogger{}
}

// WithRank returns a logger that tags every message with a rank.
func WithRank(rank int) Logger {
	return stdLogger{prefix: fmt.Sprintf("[rank %d] ", rank)}
}

func (l stdLogger) write(m Mode, level, format string, args ...any) {
	if Mode(mode.Load()) > m {
		return
	}

	msg := fmt.Sprintf(format, args...)
	outMu.Lock()
	_ = out.Output(3, " "+level+" "+l.prefix+msg)
	outMu.Unlock()
}

func (l stdLogger) Debugf(format string, args ...any) {
	l.write(DebugMode, "DEBUG", format, args...)
}

func (l stdLogger) Infof(format string, args ...any) {
	l.write(InfoMode, "INFO", format, args...)
}

func (l stdLogger) Warningf(format string, args ...any) {
	l.write(WarningMode, "WARNING", format, args...)
}

func (l stdLogger) Errorf(format string, args ...any) {
	l.write(ErrorMode, "ERROR", format, args...)
}

// Debugf logs at debug level on the default logger.
func Debugf(format string, args ...any) { stdLogger{}.write(DebugMode, "DEBUG", format, args...) }

// Infof logs at info level on the default logger.
func Infof(format string, args ...any) { stdLogger{}.write(InfoMode, "INFO", format, args...) }

// Warningf logs at warning level on the default logger.
func Warningf(format string, args ...any) {
	stdLogger{}.write(WarningMode, "WARNING", format, args...)
}

// Errorf logs at error level on the default logger.
func Errorf(format string, args ...any) { stdLogger{}.write(ErrorMode, "ERROR", format, args...) }

// Bytes renders a byte count for log lines, e.g. "1.5 MiB".
func Bytes[T ~int | ~int64 | ~uint64](n T) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}

	return humanize.IBytes(uint64(n))
}

// Count renders a large count with thousands separators.
func Count[T ~int | ~int64 | ~uint64](n T) string {
	return humanize.Comma(int64(n))
}
