package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// InitLogger configures the global logrus logger from LOG_LEVEL.
func InitLogger() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)

	level, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = log.InfoLevel
	}

	log.SetLevel(level)

	if level >= log.DebugLevel {
		log.SetReportCaller(true)
	}
}
