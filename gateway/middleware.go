package gateway

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tensormart.io/market/ledger"
)

type ctxKey int

const principalKey ctxKey = iota

// withIdentity resolves the caller's identity from a Bearer session token
// when one is presented. Requests without a token still proceed, carrying
// no principal; most endpoints are public reads.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			next.ServeHTTP(w, r)
			return
		}
		principal, err := s.signer.VerifySession(token)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionPrincipal returns the authenticated principal, if any.
func sessionPrincipal(r *http.Request) (ledger.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(ledger.Principal)
	return p, ok
}

// throttleIdentity keys the admission controller. The authenticated
// principal is preferred; without one the client's network origin is
// used. The fallback is deliberately weaker: distinct principals behind
// one origin share a single budget.
func throttleIdentity(r *http.Request) string {
	if p, ok := sessionPrincipal(r); ok {
		return p.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// throttled gates a costed operation behind the admission controller.
// Rejected requests still consume budget; see admission.Controller.
func (s *Server) throttled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.admission.Check(throttleIdentity(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Admitted {
			retry := int64(d.RetryAfter.Seconds())
			if d.RetryAfter > time.Duration(retry)*time.Second {
				retry++ // round up partial seconds
			}
			writeRateLimited(w, retry)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests is the zap access log.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
