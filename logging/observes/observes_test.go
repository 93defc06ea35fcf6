package observes

import (
	"context"
	"errors"
	"testing"

	"github.com/ncobase/keyvault/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledWithoutEndpoints(t *testing.T) {
	require.NoError(t, NewSentry(nil))
	require.NoError(t, NewSentry(&SentryOptions{}))

	shutdown, err := NewTracer(context.Background(), &TracerOption{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	CaptureError(context.Background(), errors.New("not reported"))
	FlushSentry(0)
}

func TestSentryOptionsFrom(t *testing.T) {
	cfg := &config.Config{
		AppName: "keyvault",
		RunMode: "release",
		Observes: &config.Observes{
			Sentry: &config.Sentry{Endpoint: "https://k@sentry.example.com/1", SampleRate: 0.25},
		},
	}
	opt := SentryOptionsFrom(cfg, "v1.2.0")
	require.NotNil(t, opt)
	assert.Equal(t, "release", opt.Environment)
	assert.Equal(t, "v1.2.0", opt.Release)
	assert.Equal(t, 0.25, opt.SampleRate)

	cfg.Observes.Sentry.Release = "pinned"
	assert.Equal(t, "pinned", SentryOptionsFrom(cfg, "v1.2.0").Release)

	assert.Nil(t, SentryOptionsFrom(&config.Config{}, ""))
	assert.Nil(t, TracerOptionFrom("keyvault", "v1", nil))
}
