package logger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ncobase/keyvault/logging/logger/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexedDoc struct {
	path string
	doc  map[string]any
}

func newFakeCluster(t *testing.T) (*httptest.Server, func() []indexedDoc) {
	t.Helper()
	var (
		mu   sync.Mutex
		docs []indexedDoc
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/" {
			_, _ = io.WriteString(w, `{"version":{"number":"8.18.0"},"tagline":"You Know, for Search"}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var doc map[string]any
		_ = json.Unmarshal(body, &doc)
		mu.Lock()
		docs = append(docs, indexedDoc{path: r.URL.Path, doc: doc})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []indexedDoc {
		mu.Lock()
		defer mu.Unlock()
		return append([]indexedDoc(nil), docs...)
	}
}

func TestElasticsearchHookShipsMaskedEntries(t *testing.T) {
	srv, indexed := newFakeCluster(t)

	l := &Logger{Logger: logrus.New()}
	cleanup, err := l.Init(&config.Config{
		Level:           int(logrus.InfoLevel),
		Format:          "json",
		Output:          "stderr",
		IndexName:       "keyvault-test-log",
		Desensitization: config.DefaultDesensitization(),
		Elasticsearch:   &config.Elasticsearch{Addresses: []string{srv.URL}, RotateDaily: true},
	})
	require.NoError(t, err)
	defer cleanup()
	l.SetOutput(io.Discard)

	l.Info(context.Background(), "Secret updated", "secret_id", "s1", "value", "hunter2")

	docs := indexed()
	require.Len(t, docs, 1)
	day := time.Now().UTC().Format("2006.01.02")
	assert.True(t, strings.HasPrefix(docs[0].path, "/keyvault-test-log-"+day+"/"), docs[0].path)
	assert.Equal(t, "Secret updated", docs[0].doc["message"])
	assert.Equal(t, "info", docs[0].doc["level"])
	assert.Equal(t, "s1", docs[0].doc["secret_id"])
	assert.Equal(t, "******", docs[0].doc["value"])
}

func TestElasticsearchHookRequiresReachableCluster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewElasticsearchHook(&config.Config{
		Elasticsearch: &config.Elasticsearch{Addresses: []string{srv.URL}},
	})
	assert.Error(t, err)

	_, err = NewElasticsearchHook(&config.Config{})
	assert.Error(t, err)
}

func TestElasticsearchIndexName(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "kv-log", (&ElasticsearchHook{index: "kv-log"}).indexName(at))
	assert.Equal(t, "kv-log-2026.03.09", (&ElasticsearchHook{index: "kv-log", rotateDaily: true}).indexName(at))
}

func TestElasticsearchConfig(t *testing.T) {
	v := viper.New()
	v.Set("app_name", "KeyVault")
	v.Set("run_mode", "dev")
	v.Set("logger.level", 4)
	c := config.GetConfig(v)
	assert.Equal(t, "keyvault-dev-log", c.IndexName)
	assert.Nil(t, c.Elasticsearch)

	v.Set("logger.index_name", "audit")
	v.Set("logger.elasticsearch.addresses", []string{"http://es:9200"})
	v.Set("logger.elasticsearch.rotate_daily", true)
	c = config.GetConfig(v)
	assert.Equal(t, "audit", c.IndexName)
	require.NotNil(t, c.Elasticsearch)
	assert.Equal(t, []string{"http://es:9200"}, c.Elasticsearch.Addresses)
	assert.True(t, c.Elasticsearch.RotateDaily)
}
