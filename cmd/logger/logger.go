package logger

import (
	"fmt"

	"github.com/odpf/salt/log"
	"github.com/sirupsen/logrus"

	"github.com/odpf/tablevault/config"
)

type plainFormatter int

func (p *plainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if len(entry.Data) > 0 {
		var data string
		for key, val := range entry.Data {
			data += fmt.Sprintf("%s: %v ", key, val)
		}
		return []byte(fmt.Sprintf("%s %s\n", entry.Message, data)), nil
	}
	return []byte(fmt.Sprintf("%s\n", entry.Message)), nil
}

// NewDefaultLogger initializes a plain info-level logger for cli commands.
func NewDefaultLogger() log.Logger {
	return log.NewLogrus(
		log.LogrusWithLevel("info"),
		log.LogrusWithFormatter(new(plainFormatter)),
	)
}

// NewFromConfig initializes a logger honoring the configured level and
// format.
func NewFromConfig(conf config.LogConfig) log.Logger {
	level := conf.Level
	if level == "" {
		level = "info"
	}
	if conf.Format == "json" {
		return log.NewLogrus(
			log.LogrusWithLevel(level),
			log.LogrusWithFormatter(&logrus.JSONFormatter{}),
		)
	}
	return log.NewLogrus(
		log.LogrusWithLevel(level),
		log.LogrusWithFormatter(new(plainFormatter)),
	)
}
