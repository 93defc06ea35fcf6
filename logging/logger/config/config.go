package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config configuration struct
type Config struct {
	Level           int              `json:"level" yaml:"level"`
	Format          string           `json:"format" yaml:"format"`
	Output          string           `json:"output" yaml:"output"`
	OutputFile      string           `json:"output_file" yaml:"output_file"`
	IndexName       string           `json:"index_name" yaml:"index_name"`
	Desensitization *Desensitization `json:"desensitization" yaml:"desensitization"`
	Elasticsearch   *Elasticsearch   `json:"elasticsearch" yaml:"elasticsearch"`
}

// Elasticsearch ships log entries to an index when addresses are set.
type Elasticsearch struct {
	Addresses   []string `json:"addresses" yaml:"addresses"`
	Username    string   `json:"username" yaml:"username"`
	Password    string   `json:"password" yaml:"password"`
	RotateDaily bool     `json:"rotate_daily" yaml:"rotate_daily"`
}

func getElasticsearchConfig(v *viper.Viper) *Elasticsearch {
	if !v.IsSet("logger.elasticsearch") {
		return nil
	}
	return &Elasticsearch{
		Addresses:   v.GetStringSlice("logger.elasticsearch.addresses"),
		Username:    v.GetString("logger.elasticsearch.username"),
		Password:    v.GetString("logger.elasticsearch.password"),
		RotateDaily: v.GetBool("logger.elasticsearch.rotate_daily"),
	}
}

// GetConfig returns the logger configuration
func GetConfig(v *viper.Viper) *Config {
	if !v.IsSet("logger") {
		return &Config{
			Level:           4,
			Format:          "json",
			Output:          "stdout",
			Desensitization: getDesensitizationConfigs(v),
		}
	}

	indexName := strings.ToLower(v.GetString("app_name") + "-" + v.GetString("run_mode") + "-log")
	if name := v.GetString("logger.index_name"); name != "" {
		indexName = name
	}

	return &Config{
		Level:           v.GetInt("logger.level"),
		Format:          v.GetString("logger.format"),
		Output:          v.GetString("logger.output"),
		OutputFile:      v.GetString("logger.output_file"),
		IndexName:       indexName,
		Desensitization: getDesensitizationConfigs(v),
		Elasticsearch:   getElasticsearchConfig(v),
	}
}
