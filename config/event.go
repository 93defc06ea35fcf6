package config

import (
	"github.com/spf13/viper"
)

// Event configures the audit event bus
type Event struct {
	// Store is "sql" or "mongo"
	Store   string
	Buffer  int
	Workers int
}

func getEvent(v *viper.Viper) *Event {
	return &Event{
		Store:   getStringOrDefault(v, "event.store", "sql"),
		Buffer:  getIntOrDefault(v, "event.buffer", 1000),
		Workers: getIntOrDefault(v, "event.workers", 4),
	}
}
