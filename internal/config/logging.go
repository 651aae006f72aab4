package config

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// SetupLogging configures the global logrus logger: text with full
// timestamps in development, JSON in production.
func SetupLogging(cfg *Config) {
	log.SetOutput(os.Stdout)
	if cfg.Production() {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
