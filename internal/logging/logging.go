// Package logging builds the process logger: logrus to stdout plus a rotating file.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Directory string
	Level     string
	// MaxSizeMB is the size at which app.log is rotated.
	MaxSizeMB  int
	MaxBackups int
}

// New returns a logger writing to stdout and Directory/app.log. An empty Directory logs to
// stdout only.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if opts.Directory == "" {
		logger.SetOutput(os.Stdout)
		return logger, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, nil, errors.Wrapf(err, "create log directory %s", opts.Directory)
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Directory, "app.log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))

	return logger, file, nil
}
