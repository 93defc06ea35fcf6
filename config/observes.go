package config

import (
	"time"

	"github.com/spf13/viper"
)

// Sentry config struct
type Sentry struct {
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	Environment string  `json:"environment" yaml:"environment"`
	Release     string  `json:"release" yaml:"release"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

func getSentryConfig(v *viper.Viper) *Sentry {
	return &Sentry{
		Endpoint:    v.GetString("observes.sentry.endpoint"),
		Environment: v.GetString("observes.sentry.environment"),
		Release:     v.GetString("observes.sentry.release"),
		SampleRate:  getFloat64OrDefault(v, "observes.sentry.sample_rate", 1.0),
	}
}

// Tracer configures the OTLP gRPC span exporter.
type Tracer struct {
	Endpoint     string            `json:"endpoint" yaml:"endpoint"`
	Insecure     bool              `json:"insecure" yaml:"insecure"`
	Environment  string            `json:"environment" yaml:"environment"`
	SamplingRate float64           `json:"sampling_rate" yaml:"sampling_rate"` // 0.0 to 1.0
	BatchTimeout time.Duration     `json:"batch_timeout" yaml:"batch_timeout"`
	Headers      map[string]string `json:"headers" yaml:"headers"`
}

func getTracerConfig(v *viper.Viper) *Tracer {
	return &Tracer{
		Endpoint:     v.GetString("observes.tracer.endpoint"),
		Insecure:     v.GetBool("observes.tracer.insecure"),
		Environment:  v.GetString("observes.tracer.environment"),
		SamplingRate: getFloat64OrDefault(v, "observes.tracer.sampling_rate", 1.0),
		BatchTimeout: getDurationOrDefault(v, "observes.tracer.batch_timeout", 5*time.Second),
		Headers:      v.GetStringMapString("observes.tracer.headers"),
	}
}

// Observes config struct. An empty endpoint disables the exporter.
type Observes struct {
	Sentry *Sentry
	Tracer *Tracer
}

func getObservesConfig(v *viper.Viper) *Observes {
	return &Observes{
		Sentry: getSentryConfig(v),
		Tracer: getTracerConfig(v),
	}
}
