package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/ncobase/keyvault/logging/logger/config"
	"github.com/sirupsen/logrus"
)

const indexTimeout = 5 * time.Second

// ElasticsearchHook indexes every entry as a document. It runs after the
// desensitize hook, so masked fields stay masked.
type ElasticsearchHook struct {
	client      *elasticsearch.Client
	index       string
	rotateDaily bool
	hostname    string
}

// NewElasticsearchHook connects to the configured cluster and checks it
// answers.
func NewElasticsearchHook(c *config.Config) (*ElasticsearchHook, error) {
	if c == nil || c.Elasticsearch == nil || len(c.Elasticsearch.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses are not set")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: c.Elasticsearch.Addresses,
		Username:  c.Elasticsearch.Username,
		Password:  c.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch connection error: %s", res.Status())
	}

	index := c.IndexName
	if index == "" {
		index = "keyvault-log"
	}
	hostname, _ := os.Hostname()
	return &ElasticsearchHook{
		client:      client,
		index:       index,
		rotateDaily: c.Elasticsearch.RotateDaily,
		hostname:    hostname,
	}, nil
}

func (h *ElasticsearchHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *ElasticsearchHook) Fire(entry *logrus.Entry) error {
	doc := make(map[string]any, len(entry.Data)+4)
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		doc[k] = v
	}
	doc["@timestamp"] = entry.Time.UTC().Format(time.RFC3339Nano)
	doc["level"] = entry.Level.String()
	doc["message"] = entry.Message
	if h.hostname != "" {
		doc["hostname"] = h.hostname
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	res, err := h.client.Index(h.indexName(entry.Time), bytes.NewReader(body),
		h.client.Index.WithContext(ctx),
		h.client.Index.WithRefresh("false"),
	)
	if err != nil {
		return fmt.Errorf("failed to index log entry: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch index error: %s", res.Status())
	}
	return nil
}

func (h *ElasticsearchHook) indexName(t time.Time) string {
	if !h.rotateDaily {
		return h.index
	}
	return h.index + "-" + t.UTC().Format("2006.01.02")
}
