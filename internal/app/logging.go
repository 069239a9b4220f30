package app

import (
	"github.com/voxdesk/voxdesk/internal/config"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging applies the configured level and format to the standard logger.
func ConfigureLogging(cfg config.LogConfig) {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, errParse := log.ParseLevel(cfg.Level)
		if errParse != nil {
			log.WithField("level", cfg.Level).Warn("app: unknown log level, using info")
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
