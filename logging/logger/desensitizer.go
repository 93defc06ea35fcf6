package logger

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/ncobase/keyvault/logging/logger/config"
	"github.com/sirupsen/logrus"
)

// Desensitizer handles sensitive data masking in log fields
type Desensitizer struct {
	config *config.Desensitization
}

// NewDesensitizer creates a new desensitizer instance
func NewDesensitizer(cfg *config.Desensitization) *Desensitizer {
	if cfg == nil {
		cfg = config.DefaultDesensitization()
	}
	return &Desensitizer{config: cfg}
}

// DesensitizeFields processes log fields and masks sensitive data
func (d *Desensitizer) DesensitizeFields(fields logrus.Fields) logrus.Fields {
	if !d.config.Enabled {
		return fields
	}

	result := make(logrus.Fields, len(fields))
	for key, value := range fields {
		result[key] = d.desensitizeValue(key, value, 0)
	}
	return result
}

// desensitizeValue processes a single value recursively
func (d *Desensitizer) desensitizeValue(key string, value any, depth int) any {
	if value == nil || depth > 10 {
		return value
	}

	if d.isSensitiveField(key) {
		return d.mask(value)
	}

	switch v := value.(type) {
	case string, bool, int, int64, float64, error:
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = d.desensitizeValue(k, item, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = d.desensitizeValue("", item, depth+1)
		}
		return out
	}

	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return value
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice:
		return d.processViaJSON(value, depth)
	default:
		return value
	}
}

// processViaJSON handles complex types by round-tripping them to generic JSON values
func (d *Desensitizer) processViaJSON(value any, depth int) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return value
	}
	return d.desensitizeValue("", generic, depth+1)
}

// isSensitiveField checks if field name contains sensitive keywords
func (d *Desensitizer) isSensitiveField(fieldName string) bool {
	if fieldName == "" {
		return false
	}

	lowerName := strings.ToLower(fieldName)
	for _, sensitiveField := range d.config.SensitiveFields {
		lowerSensitiveField := strings.ToLower(sensitiveField)
		if d.config.ExactFieldMatch {
			if lowerName == lowerSensitiveField {
				return true
			}
		} else if strings.Contains(lowerName, lowerSensitiveField) {
			return true
		}
	}
	return false
}

// mask replaces a sensitive value with a fixed-length mask
func (d *Desensitizer) mask(value any) any {
	if s, ok := value.(string); ok && s == "" {
		return s
	}
	return strings.Repeat(d.config.MaskChar, d.config.FixedMaskLength)
}

// desensitizeHook rewrites entry fields before they are formatted
type desensitizeHook struct {
	d *Desensitizer
}

func (h *desensitizeHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *desensitizeHook) Fire(entry *logrus.Entry) error {
	entry.Data = h.d.DesensitizeFields(entry.Data)
	return nil
}
