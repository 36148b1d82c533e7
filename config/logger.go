package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger configures the standard logrus logger from cfg and returns it.
func NewLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stdout)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.Level)
	}
	log.SetLevel(level)
	return log
}
