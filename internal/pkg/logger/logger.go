package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"agencycrm/internal/platform/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger from cfg.
func Init(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out, err := output(cfg)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.FilePath).Msg("failed to open log file, using stdout")
		out = os.Stdout
	}
	log.Logger = New(cfg.Format, out)
}

// New builds a logger writing to out. Format "text" produces console output,
// anything else JSON.
func New(format string, out io.Writer) zerolog.Logger {
	if format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func output(cfg config.LoggingConfig) (io.Writer, error) {
	if cfg.Output != "file" || cfg.FilePath == "" {
		return os.Stdout, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
}
