package config

import (
	"github.com/spf13/viper"
)

// MongoDB mongodb config struct
type MongoDB struct {
	URI        string `json:"uri" yaml:"uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

// getMongoDBConfigs reads MongoDB configurations
func getMongoDBConfigs(v *viper.Viper) *MongoDB {
	collection := v.GetString("data.mongodb.collection")
	if collection == "" {
		collection = "events"
	}
	return &MongoDB{
		URI:        v.GetString("data.mongodb.uri"),
		Database:   v.GetString("data.mongodb.database"),
		Collection: collection,
	}
}
