package handlers

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const cacheControl = "public, no-store, no-cache, must-revalidate, post-check=0, pre-check=0, max-age=0"

// headerWriter applies response headers right before the status line goes out, so handlers
// that set their own Cache-Control keep it.
type headerWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *headerWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status

	h := w.Header()
	h.Set("Access-Control-Allow-Credentials", "true")
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", cacheControl)
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "-1")
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *headerWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *headerWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// noCache marks every response as uncacheable and credential-friendly.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&headerWriter{ResponseWriter: w}, r)
	})
}

func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			hw, ok := w.(*headerWriter)
			if !ok {
				hw = &headerWriter{ResponseWriter: w}
			}
			next.ServeHTTP(hw, r)

			status := hw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   status,
				"duration": time.Since(start),
			}).Info("Handled request")
		})
	}
}

func recoverer(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.WithField("path", r.URL.Path).Errorf("Recovered from panic: %v", rec)
					respondError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
