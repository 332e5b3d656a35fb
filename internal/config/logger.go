package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger configures the standard logrus logger from cfg and returns
// it.  Unknown levels fall back to info.
func NewLogger(cfg Config) *logrus.Logger {
	l := logrus.StandardLogger()
	l.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.LogFormat, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}
