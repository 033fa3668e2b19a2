package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	runLogFile *os.File
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// RunLogDir, when set, makes every entry also append to a per-run
	// log file under this directory. The file is never truncated; each
	// run opens its own file named after the run ID.
	RunLogDir string
	RunID     string
}

// Init initializes the global logger. When a run log directory is
// configured, entries are teed: a console mirror for the operator and an
// append-only JSON file that persists after the run.
func Init(cfg Config) error {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var mirror io.Writer
	if cfg.JSONOutput {
		mirror = output
	} else {
		mirror = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	if cfg.RunLogDir != "" {
		if err := os.MkdirAll(cfg.RunLogDir, 0755); err != nil {
			return fmt.Errorf("failed to create run log directory: %w", err)
		}

		name := fmt.Sprintf("run-%s.log", cfg.RunID)
		if cfg.RunID == "" {
			name = fmt.Sprintf("run-%s.log", time.Now().UTC().Format("20060102T150405Z"))
		}

		f, err := os.OpenFile(filepath.Join(cfg.RunLogDir, name),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open run log file: %w", err)
		}
		runLogFile = f

		Logger = zerolog.New(zerolog.MultiLevelWriter(mirror, f)).With().Timestamp().Logger()
		return nil
	}

	Logger = zerolog.New(mirror).With().Timestamp().Logger()
	return nil
}

// Close flushes and closes the run log file, if one is open
func Close() error {
	if runLogFile != nil {
		err := runLogFile.Close()
		runLogFile = nil
		return err
	}
	return nil
}

// RunLogPath returns the path of the current run log file, or empty when
// logging only to the terminal
func RunLogPath() string {
	if runLogFile == nil {
		return ""
	}
	return runLogFile.Name()
}

// WithRunID creates a child logger carrying the run_id field. Components
// derive their own children from it, so every entry in a run log traces
// back to its run.
func WithRunID(runID string) zerolog.Logger {
	return Logger.With().Str("run_id", runID).Logger()
}
