package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"slidealign/pkg/logger"
)

// Reporter forwards per-pair failures to an error tracker
type Reporter interface {
	Report(id string, err error)
	Flush(timeout time.Duration)
}

// NullReporter drops everything
type NullReporter struct{}

func (NullReporter) Report(id string, err error)  {}
func (NullReporter) Flush(timeout time.Duration) {}

// SentryReporter sends failures to Sentry tagged with the pair identifier
type SentryReporter struct{}

func (SentryReporter) Report(id string, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("slide_id", id)
		sentry.CaptureException(err)
	})
}

func (SentryReporter) Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// NewReporter returns a Sentry reporter when dsn is set. Initialisation
// failures are logged and fall back to a NullReporter; they never stop a run.
func NewReporter(dsn, release string, log logger.Logger) Reporter {
	if dsn == "" {
		return NullReporter{}
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: release,
	}); err != nil {
		log.Errorf("Sentry initialization failed: %v", err)
		return NullReporter{}
	}
	return SentryReporter{}
}
