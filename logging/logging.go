// Package logging configures the process-wide logrus logger.
//
// Output always goes to stderr with the nested formatter. When LOG_FILE is
// set, a rotating file writer (lumberjack) is added alongside it.
package logging

import (
	"io"
	"os"
	"sync"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

type Fields = logrus.Fields

// New returns the shared logger, building it on first use.
func New() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()

		level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)

		logger.SetFormatter(&formatter.Formatter{
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			NoColors:        os.Getenv("LOG_NO_COLOR") != "",
		})

		writers := []io.Writer{os.Stderr}
		if logFile := os.Getenv("LOG_FILE"); logFile != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    100, // MB
				MaxAge:     7,   // days
				MaxBackups: 3,
				Compress:   true,
			})
		}
		logger.SetOutput(io.MultiWriter(writers...))
	})
	return logger
}
