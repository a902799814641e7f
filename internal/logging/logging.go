// Package logging builds the logrus logger shared by the command and the pipeline.
package logging

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Options select the level, format and optional rotating file of the logger
type Options struct {
	Debug bool
	Level string

	// File, when set, receives a copy of every entry and is rotated by size
	File    string
	MaxSize int // megabytes
	MaxAge  int // days
}

// New initializes the logger. Debug mode uses coloured text at debug level,
// otherwise entries are JSON at the configured level.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename: opts.File,
			MaxSize:  opts.MaxSize,
			MaxAge:   opts.MaxAge,
		})
	}
	logger.SetOutput(out)

	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   opts.File == "",
		})
		logger.Debug("Debug logging enabled")
		return logger, nil
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(opts.Level); err != nil {
			return nil, err
		}
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger, nil
}
