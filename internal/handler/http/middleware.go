package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"linkedge/internal/clicks"
	"linkedge/internal/metrics"
	"linkedge/pkg/logger"

	"github.com/google/uuid"
)

// Middleware is a function that wraps an http.Handler.
// The chain composes cross-cutting concerns around the edge handler;
// each middleware can run code before/after the handler or short-circuit.

// LoggingMiddleware logs HTTP requests with structured logging
func LoggingMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap the response writer to capture the status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			log.WithContext(r.Context()).Info("HTTP request",
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", duration.Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestIDMiddleware adds a unique request ID to each request,
// for cross-instance tracing of a single redirect
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()

		// Expose to the client and to every log line downstream
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error
// This prevents the entire server from crashing due to a panic in a handler
func RecoveryMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("Panic recovered",
						"error", err,
						"host", r.Host,
						"path", r.URL.Path,
						"method", r.Method,
					)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Chain combines multiple middleware functions
// Middleware is applied in reverse order so it executes in the order given
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// RateLimiter is the limiter capability the middleware needs
type RateLimiter interface {
	Allow(ctx context.Context, actor string) (allowed bool, remaining int, resetTime time.Time, err error)
	MaxRequests() int
}

// RateLimitMiddleware gates requests per client IP before any expensive
// work. The limiter fails open: if the counter store is unreachable the
// request proceeds, because availability of the redirect path outranks
// strict enforcement.
func RateLimitMiddleware(limiter RateLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := clicks.ClientIP(r)

			allowed, remaining, resetTime, err := limiter.Allow(r.Context(), actor)
			if err != nil {
				metrics.RateLimitFailOpenTotal.Inc()
				log.Warn("rate limiter unavailable, failing open", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			// Standard rate limit headers
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.MaxRequests()))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

			if !allowed {
				retryAfter := int(time.Until(resetTime).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}

				metrics.RecordRateLimited()

				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}

			metrics.RecordRateLimitAllowed()
			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware records Prometheus metrics for HTTP requests
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		// Group paths to keep label cardinality bounded
		endpoint := simplifyEndpoint(r.URL.Path)

		metrics.HTTPRequestDuration.WithLabelValues(r.Method, endpoint, status).Observe(duration)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, status).Inc()
	})
}

// simplifyEndpoint reduces cardinality by grouping similar endpoints.
// Every short key would otherwise become its own label value.
func simplifyEndpoint(path string) string {
	switch {
	case path == "/":
		return "/"
	case path == "/health/live":
		return "/health/live"
	case path == "/metrics":
		return "/metrics"
	case strings.Count(path, "/") == 1:
		return "/:key"
	default:
		return "/*"
	}
}
