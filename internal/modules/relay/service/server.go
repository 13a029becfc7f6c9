package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"digit_bot/internal/modules/config"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter /websockets/v3 повторяет путь биржи, чтобы клиенту менять только хост.
func NewRouter(b *Bridge, reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/websockets/v3", b).Methods(http.MethodGet)
	r.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

type Server struct {
	srv    *http.Server
	bridge *Bridge
	log    *zap.Logger
}

func NewServer(cfg *config.Config, b *Bridge, r *mux.Router, log *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Relay.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		bridge: b,
		log:    log.Named("relay"),
	}
}

func (s *Server) Start() {
	go func() {
		s.log.Info("relay listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("relay server", zap.Error(err))
		}
	}()
}

// Stop закрывает listener; открытые пары (hijacked) доживают до закрытия клиентом
// или отмены ctx.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.bridge.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
