package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	applog "nutrilabel/internal/log"
)

// correlate copies chi's request id into the log context and echoes it back.
func correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		w.Header().Set(middleware.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(applog.WithRequestID(r.Context(), id)))
	})
}

// accessLog writes one record per request once the response is complete.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", float64(time.Since(start).Microseconds()) / 1000,
				"client_ip", r.RemoteAddr,
			}
			switch {
			case status >= http.StatusInternalServerError:
				applog.Error(r.Context(), "request completed", args...)
			case status >= http.StatusBadRequest:
				applog.Warn(r.Context(), "request completed", args...)
			default:
				applog.Info(r.Context(), "request completed", args...)
			}
		}()
		next.ServeHTTP(ww, r)
	})
}
