package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"time"

	"github.com/marmos91/docmirror/internal/logger"
)

// authenticate gates h behind HTTP Basic authentication against the
// configured admin account.
func (s *Server) authenticate(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !s.credentialsMatch(username, password) {
			s.config.Metrics.RecordAuthFailure(route)
			logger.Warn("Rejected %s %s from %s: invalid credentials", r.Method, route, clientAddr(r))

			w.Header().Set("WWW-Authenticate", `Basic realm="docmirror admin", charset="UTF-8"`)
			writeStatus(w, http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// credentialsMatch compares both fields in constant time, evaluating both so
// the timing does not reveal which one differed.
func (s *Server) credentialsMatch(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.config.Username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.config.Password))
	return userOK&passOK == 1
}

// rateLimit rejects requests with 429 once the client's bucket is empty.
func (s *Server) rateLimit(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientAddr(r)) {
			s.config.Metrics.RecordRateLimited(route)
			w.Header().Set("Retry-After", "1")
			writeStatus(w, http.StatusTooManyRequests)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// instrument records the status and duration of every request on route.
func (s *Server) instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		h.ServeHTTP(sw, r)

		duration := time.Since(start)
		s.config.Metrics.RecordRequest(route, sw.status, duration)
		if route != "static" {
			logger.Debug("%s %s -> %d (%v)", r.Method, r.URL.Path, sw.status, duration)
		}
	})
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// clientAddr is the rate limiting key: the peer IP without port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
