package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ncobase/keyvault/ctxutil"
	"github.com/ncobase/keyvault/logging/logger/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	l := &Logger{Logger: logrus.New()}
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(buf)
	l.AddHook(&desensitizeHook{d: NewDesensitizer(config.DefaultDesensitization())})
	return l
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	l.SetVersion("1.2.3")

	ctx := ctxutil.SetTraceID(context.Background(), "trace-1")
	l.Info(ctx, "Approval approved", "approval_id", "a1", "error", errors.New("none"))

	out := decode(t, &buf)
	assert.Equal(t, "Approval approved", out["msg"])
	assert.Equal(t, "a1", out["approval_id"])
	assert.Equal(t, "none", out["error"])
	assert.Equal(t, "trace-1", out["trace_id"])
	assert.Equal(t, "1.2.3", out["version"])
}

func TestOddArgumentsAreKept(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Warn(context.Background(), "dangling", "key")

	out := decode(t, &buf)
	assert.Equal(t, "key", out[MessageKey])
}

func TestSensitiveFieldsAreMasked(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Info(context.Background(), "Secret updated",
		"secret_id", "s1",
		"value", "hunter2",
		"payload", map[string]any{"private_key": "abc", "name": "db"},
	)

	out := decode(t, &buf)
	assert.Equal(t, "s1", out["secret_id"])
	assert.Equal(t, "******", out["value"])
	payload, ok := out["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "******", payload["private_key"])
	assert.Equal(t, "db", payload["name"])
}

func TestDisabledDesensitizer(t *testing.T) {
	d := NewDesensitizer(&config.Desensitization{Enabled: false})
	fields := d.DesensitizeFields(logrus.Fields{"password": "p"})
	assert.Equal(t, "p", fields["password"])
}

func TestApplyLevelIgnoresOutOfRange(t *testing.T) {
	l := &Logger{Logger: logrus.New()}
	l.ApplyLevel(int(logrus.DebugLevel))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.ApplyLevel(42)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
}
