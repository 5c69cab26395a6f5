// Package logging configures the process-wide logrus logger from LogConfig.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/opd-ai/audiocore/config"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the standard logrus logger: level, formatter and outputs.
// Stderr is always an output; a rotated file is added when enabled. The
// returned closer flushes and closes the file output, if any.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	return Configure(logrus.StandardLogger(), cfg, os.Stderr)
}

// Configure applies cfg to logger, writing to console and, when enabled, to
// the rotated log file.
func Configure(logger *logrus.Logger, cfg config.LogConfig, console io.Writer) (io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	formatter, err := newFormatter(cfg.Format)
	if err != nil {
		return nil, err
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}

	if cfg.File.Enabled {
		fileWriter, err := createFileWriter(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to create file output: %w", err)
		}
		writers = append(writers, fileWriter)
		closer = fileWriter
	}

	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	logger.SetOutput(io.MultiWriter(writers...))

	return closer, nil
}

// newFormatter returns the formatter for the configured format.
func newFormatter(format string) (logrus.Formatter, error) {
	switch format {
	case "text", "":
		f := new(prefixed.TextFormatter)
		f.FullTimestamp = true
		return f, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json or text)", format)
	}
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.LogFileConfig) (*lumberjack.Logger, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   fc.Compress,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
