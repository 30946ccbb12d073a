package server

import (
	"net/http"
	"time"
)

// withTimeout bounds a handler by the configured write timeout.
// http.TimeoutHandler does the cutoff but emits its body as
// plain text, so the writer is wrapped to relabel the 503 it
// produces as JSON. Handler responses pass through untouched.
func (s *Server) withTimeout(h http.HandlerFunc) http.Handler {
	inner := http.Handler(h)
	if s.handlerDelay > 0 {
		delay := s.handlerDelay
		inner = http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(delay)
				h(w, r)
			})
	}

	bounded := http.TimeoutHandler(
		inner, s.cfg.WriteTimeout, errorBody("request timed out"),
	)
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			bounded.ServeHTTP(&timeoutWriter{ResponseWriter: w}, r)
		})
}

// timeoutWriter sets the JSON content type on the timeout 503.
// A handler that already set its own Content-Type wins.
type timeoutWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *timeoutWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.wrote = true
	if code == http.StatusServiceUnavailable &&
		w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *timeoutWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
