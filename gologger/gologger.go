package gologger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger. JSON to stdout unless PRETTY=1.
func NewLogger() zerolog.Logger {
	if os.Getenv("LOG_TIME_MS") == "1" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	}
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"

	zerolog.SetGlobalLevel(levelFromEnv())

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("PRETTY") == "1" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}

func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.DebugLevel
	}
	return lvl
}
