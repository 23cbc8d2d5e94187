package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global hub. An empty DSN leaves Sentry disabled
// and every capture becomes a no-op.
func InitSentry(dsn, environment string, sampleRate float64) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		SampleRate:       sampleRate,
		AttachStacktrace: true,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports an unexpected failure with the operation that hit it
func CaptureError(err error, operation string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		sentry.CaptureException(err)
	})
}
