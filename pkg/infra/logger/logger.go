package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	fileBufferSize    = 32 * 1024
	consoleBufferSize = 1024
)

type Options struct {
	// Service names the log file, e.g. "guard" writes logs/guard.log.
	Service string
	// Level falls back to LOG_LEVEL and then to info.
	Level string
	// Dir is relative to the working directory. Empty disables the file sink.
	Dir     string
	Console bool
}

// NewLogger builds the JSON logger used by every component. The returned
// closer flushes the asynchronous sinks and must run before exit.
func NewLogger(opts Options) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	logger.SetLevel(parseLevel(opts.Level))

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if opts.Dir == "" {
		logger.SetOutput(os.Stdout)
		return logger, closeAll, nil
	}

	logFile, err := logPath(opts.Dir, opts.Service)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	fileWriter, err := NewAsyncFileWriter(logFile, fileBufferSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize async log writer: %w", err)
	}
	logger.SetOutput(fileWriter)
	closers = append(closers, fileWriter.Close)

	if opts.Console {
		hook := NewAsyncConsoleHook(consoleBufferSize)
		logger.AddHook(hook)
		closers = append(closers, hook.Close)
	}
	return logger, closeAll, nil
}

func parseLevel(level string) logrus.Level {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

func logPath(dir, service string) (string, error) {
	if service == "" {
		service = "guard"
	}
	cleanDir := filepath.Clean(dir)
	logFile := filepath.Join(cleanDir, service+".log")
	if filepath.Dir(logFile) != cleanDir {
		return "", fmt.Errorf("invalid log file name %q", service)
	}
	return logFile, nil
}
