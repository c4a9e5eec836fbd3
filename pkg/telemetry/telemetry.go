// Package telemetry reports fatal command errors to Sentry when a DSN is
// configured. Without a DSN every function is a no-op.
package telemetry

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

// Options configures the Sentry client.
type Options struct {
	DSN         string
	Environment string
	Release     string
	Debug       bool
	// Transport overrides the HTTP transport, for tests.
	Transport sentry.Transport
}

// Init initializes Sentry. The returned flush function waits for queued
// events and must be called before the process exits.
func Init(opts Options) (func(), error) {
	if opts.DSN == "" {
		enabled.Store(false)
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		Debug:            opts.Debug,
		SampleRate:       1.0,
		AttachStacktrace: false,
		ServerName:       "",
		Transport:        opts.Transport,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return func() {}, fmt.Errorf("sentry initialization failed: %w", err)
	}

	enabled.Store(true)
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// Enabled reports whether Init configured a client.
func Enabled() bool {
	return enabled.Load()
}

// CaptureError sends err tagged with its error kind and the command that failed.
func CaptureError(err error, kind, command string) {
	if err == nil || !Enabled() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_kind", kind)
		scope.SetTag("command", command)
		sentry.CaptureException(err)
	})
}

var secretPattern = regexp.MustCompile(`(?i)(password|token|secret)=\S+`)

// scrubEvent removes credential values from messages before they leave
// the process.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.Message = scrub(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
	}
	return event
}

func scrub(s string) string {
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}
