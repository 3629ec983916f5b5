// Package api contains the webserver for the savings API and SSE progress
// subscriptions.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/bbayazit16/l2savings/common"
	"github.com/bbayazit16/l2savings/savings"
)

// SavingsService is the calculation backend the server exposes.
type SavingsService interface {
	Chains() []common.Chain
	CalculateAll(ctx context.Context, address string, onProgress func(savings.ChainProgress)) (common.AllSavings, error)
}

type HTTPServerConfig struct {
	ListenAddr string
	Log        *zap.SugaredLogger
	Service    SavingsService

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *zap.SugaredLogger
	service SavingsService

	srv               *http.Server
	sseConnectionMap  map[string]*sseSubscription
	sseConnectionLock sync.RWMutex
}

func New(cfg *HTTPServerConfig) (srv *Server) {
	srv = &Server{
		cfg:              cfg,
		log:              cfg.Log,
		service:          cfg.Service,
		srv:              nil,
		sseConnectionMap: make(map[string]*sseSubscription),
	}
	srv.isReady.Swap(true)

	mux := chi.NewRouter()

	mux.Use(srv.httpLogger)
	mux.Get("/v1/savings/{address}", srv.handleSavings)
	mux.Get("/v1/savings/{address}/localized", srv.handleSavingsLocalized)
	mux.Get("/v1/savings/{address}/export", srv.handleSavingsExport)
	mux.Get("/v1/chains", srv.handleChains)
	mux.Get("/sse/savings/{address}", srv.handleSavingsSSE)
	mux.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !srv.isReady.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareZap(s.log.Desugar(), next)
}

func (s *Server) RunInBackground() {
	go func() {
		s.log.With("listenAddress", s.cfg.ListenAddr).Info("Starting HTTP server")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.With("err", err).Error("HTTP server failed")
		}
	}()
}

func (s *Server) Shutdown() {
	// Flip readiness first so load balancers drain before connections drop.
	s.isReady.Swap(false)
	if s.cfg.DrainDuration > 0 {
		s.log.With("drainDuration", s.cfg.DrainDuration.String()).Info("Waiting before shutdown")
		time.Sleep(s.cfg.DrainDuration)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.With("err", err).Error("Graceful HTTP server shutdown failed")
	} else {
		s.log.Info("HTTP server gracefully stopped")
	}
}

func (s *Server) addSubscriber(sub *sseSubscription) {
	s.sseConnectionLock.Lock()
	defer s.sseConnectionLock.Unlock()
	s.sseConnectionMap[sub.uid] = sub
	s.log.With("subscribers", len(s.sseConnectionMap)).Info("added subscriber")
}

func (s *Server) removeSubscriber(sub *sseSubscription) {
	s.sseConnectionLock.Lock()
	defer s.sseConnectionLock.Unlock()
	delete(s.sseConnectionMap, sub.uid)
	s.log.With("subscribers", len(s.sseConnectionMap)).Info("removed subscriber")
}
