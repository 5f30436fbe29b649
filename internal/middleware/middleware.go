// file: internal/middleware/middleware.go
package middleware

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SlowRequestThreshold marks requests logged as slow
const SlowRequestThreshold = 2 * time.Second

// EnhancedLogging middleware with structured logging and correlation IDs
func EnhancedLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := GetRequestStart(r.Context())
		requestLogger := GetRequestLogger(r.Context())

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		requestLogger.Info("Request completed",
			zap.Int("status", rw.status),
			zap.Duration("duration", duration),
			zap.Int64("response_size", rw.bytesWritten),
		)

		if duration > SlowRequestThreshold && !rw.hijacked {
			requestLogger.Warn("Slow request detected",
				zap.Duration("duration", duration),
				zap.Duration("threshold", SlowRequestThreshold),
			)
		}
	})
}

// RecoverPanic middleware with enhanced logging
func RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				GetRequestLogger(r.Context()).Error("Panic recovered",
					zap.Any("panic", err),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Stack("stack"),
				)

				writeJSONError(w, "INTERNAL_ERROR", "An internal error occurred", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS middleware
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Correlation-ID")
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Correlation-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecureHeaders middleware
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "same-origin")

		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, errType, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
		"timestamp": time.Now().Unix(),
	})
	w.Write(body)
}

// responseWriter captures status and size. It passes Hijack through so
// websocket upgrades work behind the logging middleware.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
	hijacked     bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	written, err := rw.ResponseWriter.Write(data)
	rw.bytesWritten += int64(written)
	return written, err
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, buf, err := hj.Hijack()
	if err == nil {
		rw.hijacked = true
		rw.status = http.StatusSwitchingProtocols
	}
	return conn, buf, err
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
