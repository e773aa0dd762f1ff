package rest

import (
	"net/http"
	"time"

	"bitbucket.org/kleinnic74/tourist/consts"
	"bitbucket.org/kleinnic74/tourist/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func WithMiddleWares(handler http.Handler, name string) http.Handler {
	return cors(logRequests(handler, name))
}

// statusRecorder captures the response status for the request log. It
// must keep forwarding Flush so the event stream can push through the
// middleware stack.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logRequests tags the request context with a request id (taken from
// X-Request-ID if the client sent one) and logs every served request
func logRequests(next http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		logger, ctx := logging.FromWithNameAndFields(r.Context(), name, zap.String("request", rid))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		logger.Debug("HTTP request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("took", time.Since(start)))
	})
}

func cors(next http.Handler) http.Handler {
	if !consts.IsDevMode() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
