package docsynchttp

import (
	"fmt"
	"net/http"
	"time"

	"github.com/theroutercompany/docsync/internal/http/problem"
	pkglog "github.com/theroutercompany/docsync/pkg/log"
)

type middleware func(http.Handler) http.Handler

// requestMetadata ensures every request has IDs and the response echoes them back.
func requestMetadata() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req, requestID, traceID := ensureRequestIDs(r)
			w.Header().Set("X-Request-Id", requestID)
			w.Header().Set("X-Trace-Id", traceID)
			next.ServeHTTP(w, req)
		})
	}
}

func securityHeaders() middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers := w.Header()
			headers.Set("X-Content-Type-Options", "nosniff")
			headers.Set("X-Frame-Options", "DENY")
			headers.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}

// bodyLimit rejects declared oversize bodies up front and caps the rest.
func bodyLimit(limit int64) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit > 0 && r.ContentLength > limit {
				problem.Write(w, problem.New(r, http.StatusRequestEntityTooLarge, problem.CodePayloadTooLarge,
					fmt.Sprintf("request body exceeds %d bytes", limit)))
				return
			}
			if limit > 0 && r.Body != nil {
				// One spare byte lets handlers detect overflow themselves.
				r.Body = http.MaxBytesReader(w, r.Body, limit+1)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// logging records structured request information and feeds request metrics.
func logging(logger pkglog.Logger, metrics *httpMetrics) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(writer, r)

			duration := time.Since(start)
			metrics.observe(r, writer.status, duration)

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", writer.status,
				"durationMs", float64(duration.Microseconds()) / 1000.0,
				"bytesWritten", writer.bytes,
			}
			if rid := requestIDFromContext(r.Context()); rid != "" {
				fields = append(fields, "requestId", rid)
			}
			if tid := traceIDFromContext(r.Context()); tid != "" {
				fields = append(fields, "traceId", tid)
			}

			switch {
			case writer.status >= 500:
				logger.Errorw("http request completed", fields...)
			case writer.status >= 400:
				logger.Warnw("http request completed", fields...)
			default:
				logger.Infow("http request completed", fields...)
			}
		})
	}
}

func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
