// Package logger pkg/logger/logger.go configures logrus from the logging
// config section.
package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cgplatform/dbwriter/pkg/config"
)

// New builds the root logger. Subsystems derive entries with a component
// field via Component.
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}

	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file '%s': %w", cfg.File, err)
		}

		log.SetOutput(f)
	}

	return log, nil
}

// Component returns an entry tagged with the subsystem name.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
