// Package observability поднимает служебный HTTP-сервер с метриками
// Prometheus и проверкой готовности зависимостей.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/vpn-subscription-bot/internal/config"
)

// ReadinessChecker проверяет готовность зависимости принимать запросы.
type ReadinessChecker interface {
	CheckDatabaseReady(ctx context.Context) error
}

// App инкапсулирует служебный HTTP-сервер.
type App struct {
	server *http.Server
	logger *slog.Logger
}

// New собирает маршруты и создает сервер по настройкам из конфигурации.
func New(cfg config.Observability, storage ReadinessChecker, logger *slog.Logger) *App {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", healthHandler(storage))

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{server: srv, logger: logger}
}

func healthHandler(storage ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := storage.CheckDatabaseReady(ctx); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	}
}

// Run запускает сервер и корректно останавливает его при отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("observability server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down observability server gracefully")
		return a.server.Shutdown(timeoutCtx)
	}
}
