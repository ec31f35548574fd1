package tools

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ztkent/lightmeter/internal/config"
)

// NewLogger builds the application logger. Anything we log is written to
// stdout, and appended to the configured log file when there is one.
func NewLogger(cfg config.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()
	if strings.ToLower(cfg.Format) == "text" {
		l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	} else {
		l.Formatter = &logrus.JSONFormatter{}
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.File == "" {
		l.SetOutput(os.Stdout)
		return l, io.NopCloser(nil), nil
	}
	logFile, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	l.SetOutput(io.MultiWriter(logFile, os.Stdout))
	return l, logFile, nil
}
