package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xela07ax/xchain-router/internal/router"
)

const TraceHeader = "X-Trace-ID"

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// ID мог прийти от клиента или прокси
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// Клиент тоже должен знать ID своего запроса
		w.Header().Set(TraceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(router.WithTraceID(r.Context(), traceID)))
	})
}
