package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/getsentry/sentry-go"
)

// Recoverer turns a panic into a 500 and reports it
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetExtra("stack", string(debug.Stack()))
					scope.SetTag("path", r.URL.Path)
					sentry.CaptureException(fmt.Errorf("panic: %v", rec))
				})

				logger.Error("panic_recovered",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec))

				pkghttp.WriteInternalError(w, "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
