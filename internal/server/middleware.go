package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/iabetor/pispeak/internal/logger"
)

// RequestIDHeader 是请求 ID 的请求/响应头。
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID 返回 ctx 中的请求 ID。
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withRequestID 为每个请求分配 ID 并记录访问日志。
// 客户端已带 X-Request-ID 时沿用。
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))

		logger.With("request_id", id).Debugf("[server] %s %s → %d (%v)",
			r.Method, r.URL.Path, sw.status, time.Since(start).Round(time.Millisecond))
	})
}
