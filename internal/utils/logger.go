package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global logger. With a logPath, lines are
// appended to that file and only mirrored to stderr in debug mode so they
// don't tear the progress display. Without one, stderr gets everything.
// The returned closer releases the file.
func InitLogger(debug bool, logPath string) (io.Closer, error) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	if logPath == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nopCloser{}, nil
	}
	if dir := filepath.Dir(logPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	var w io.Writer = zerolog.ConsoleWriter{
		Out:        file,
		NoColor:    true,
		TimeFormat: time.DateTime,
	}
	if debug {
		w = zerolog.MultiLevelWriter(console, w)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// GetLogger returns the global logger tagged with op=component. Call it
// after InitLogger so the configured writer is picked up.
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("op", component).Logger()
}
