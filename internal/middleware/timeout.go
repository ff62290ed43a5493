package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/izukowska/10xcards/pkg/logging"
)

// Timeout bounds the request context by d. Handlers observe the deadline
// through ctx; if one returns after the deadline without writing anything,
// a 504 is sent on its behalf.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && ww.Status() == 0 {
				logging.L(ctx).Warn("request timeout", zap.Duration("timeout", d))
				ww.Header().Set("Content-Type", "application/json")
				ww.WriteHeader(http.StatusGatewayTimeout)
				_, _ = ww.Write([]byte(`{"error":"Gateway Timeout","message":"request timed out"}`))
			}
		})
	}
}
