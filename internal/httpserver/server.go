// Package httpserver поднимает служебный HTTP: /healthz и /metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Pinger — зависимость, здоровье которой отражает /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server — обёртка над http.Server с готовыми маршрутами.
type Server struct {
	httpServer *http.Server
	checks     map[string]Pinger
}

// New создаёт сервер на addr. checks — зависимости для /healthz (store, redis).
func New(addr string, checks map[string]Pinger) *Server {
	s := &Server{checks: checks}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler отдаёт корневой обработчик (для тестов).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start начинает принимать запросы. Блокирует до Shutdown.
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("HTTP-сервер метрик запущен")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown корректно останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Остановка HTTP-сервера")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			log.WithError(err).WithField("check", name).Warn("Проверка здоровья не прошла")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("Не удалось закодировать JSON-ответ")
	}
}
