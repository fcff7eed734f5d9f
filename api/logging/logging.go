// Package logging builds the logger shared by the controller and the platform backends.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/sirupsen/logrus"

	"github.com/bluetuith-org/bluelink/api/config"
)

// New creates a configured logger.
// The returned closer function should be deferred to close file handles.
func New(cfg config.Logging) (*logrus.Logger, func() error, error) {
	writer, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "open-log-output", "output", cfg.Output),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot open log output"),
		)
	}

	logger := logrus.New()
	logger.SetOutput(writer)
	logger.SetLevel(parseLevel(cfg.Level))

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger, closer, nil
}

// Discard returns a logger that drops every entry.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

// parseLevel converts a string level to a logrus level. Unknown levels map to info.
func parseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(s))
	if err != nil {
		return logrus.InfoLevel
	}

	return level
}

func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}

	return f, f.Close, nil
}
