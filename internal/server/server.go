package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reajuria/bindb/internal/database"
	"github.com/reajuria/bindb/internal/metrics"
)

// NewRouter builds the /v1 route table.
func NewRouter(registry *database.Registry, m *metrics.Registry, version string) http.Handler {
	h := NewHandlers(registry, m, version)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/table/create", h.CreateTable)
	mux.HandleFunc("GET /v1/table/list", h.ListTables)
	mux.HandleFunc("GET /v1/table/schema", h.TableSchema)
	mux.HandleFunc("POST /v1/insert", h.Insert)
	mux.HandleFunc("POST /v1/bulkInsert", h.BulkInsert)
	mux.HandleFunc("GET /v1/find", h.Find)
	mux.HandleFunc("PUT /v1/update", h.Update)
	mux.HandleFunc("DELETE /v1/delete", h.Delete)
	mux.HandleFunc("GET /v1/count", h.Count)
	mux.HandleFunc("GET /v1/stats", h.StatsHandler)
	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/info", h.Info)
	mux.HandleFunc("GET /v1/metrics", h.Metrics)

	return withRequestLog(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestLog tags each request with an id and logs its outcome.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		slog.Info("request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
