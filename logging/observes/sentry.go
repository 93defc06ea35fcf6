// Package observes sets up error reporting and span export for the server
// process.
package observes

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/ncobase/keyvault/config"
	"github.com/ncobase/keyvault/ctxutil"
)

type SentryOptions struct {
	Dsn         string
	Name        string
	Release     string
	Environment string
	SampleRate  float64
}

// NewSentry registers the global sentry client. A nil or empty option
// leaves reporting disabled.
func NewSentry(opt *SentryOptions) error {
	if opt == nil || opt.Dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              opt.Dsn,
		AttachStacktrace: true,
		SampleRate:       opt.SampleRate,
		ServerName:       opt.Name,
		Release:          opt.Release,
		Environment:      opt.Environment,
	})
}

// SentryOptionsFrom maps the observes config to sentry options.
func SentryOptionsFrom(cfg *config.Config, release string) *SentryOptions {
	if cfg.Observes == nil || cfg.Observes.Sentry == nil {
		return nil
	}
	sc := cfg.Observes.Sentry
	if sc.Release != "" {
		release = sc.Release
	}
	env := sc.Environment
	if env == "" {
		env = cfg.RunMode
	}
	return &SentryOptions{
		Dsn:         sc.Endpoint,
		Name:        cfg.AppName,
		Release:     release,
		Environment: env,
		SampleRate:  sc.SampleRate,
	}
}

// CaptureError reports err with the request's trace and user ids. It is a
// no-op when sentry is not initialized.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("trace_id", ctxutil.GetTraceID(ctx))
		if uid := ctxutil.GetUserID(ctx); uid != "" {
			scope.SetUser(sentry.User{ID: uid})
		}
		hub.CaptureException(err)
	})
}

// FlushSentry waits for buffered events.
func FlushSentry(timeout time.Duration) {
	if sentry.CurrentHub().Client() == nil {
		return
	}
	if !sentry.Flush(timeout) {
		fmt.Println("sentry flush timed out")
	}
}
