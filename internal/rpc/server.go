package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/insoblok/inso-txpool/internal/config"
	"github.com/insoblok/inso-txpool/internal/mempool"
)

const (
	maxRequestSize = 1 << 20
	maxBatchSize   = 100
)

// Server is the JSON-RPC HTTP and WebSocket server.
type Server struct {
	handler *Handler
	ws      *WSSubscriptionManager
	pool    mempool.TxPool
	cfg     *config.ServerConfig
	logger  log.Logger
}

// NewServer creates a new RPC server.
func NewServer(cfg *config.ServerConfig, handler *Handler, pool mempool.TxPool) *Server {
	return &Server{
		handler: handler,
		ws:      NewWSSubscriptionManager(handler, cfg.CORSOrigins),
		pool:    pool,
		cfg:     cfg,
		logger:  log.New("module", "rpc"),
	}
}

// HTTPHandler returns the JSON-RPC HTTP routes.
func (s *Server) HTTPHandler() http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}))
	r.Post("/", s.handleHTTP)
	r.Get("/health", s.handleHealth)
	return r
}

// WSHandler returns the WebSocket upgrade route.
func (s *Server) WSHandler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.ws.HandleWS)
	return r
}

// Run serves HTTP and WebSocket JSON-RPC until ctx is cancelled or a
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.HTTPHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}
	servers := []*http.Server{httpServer}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("JSON-RPC HTTP server starting", "addr", s.cfg.ListenAddr)
		return listen(httpServer, "http")
	})

	if s.cfg.WSAddr != "" {
		wsServer := &http.Server{
			Addr:        s.cfg.WSAddr,
			Handler:     s.WSHandler(),
			BaseContext: func(_ net.Listener) context.Context { return ctx },
		}
		servers = append(servers, wsServer)
		g.Go(func() error {
			s.logger.Info("JSON-RPC WebSocket server starting", "addr", s.cfg.WSAddr)
			return listen(wsServer, "ws")
		})
		forward := s.ws.Watch(s.pool)
		g.Go(func() error {
			return forward(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down RPC servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func listen(srv *http.Server, name string) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// handleHTTP processes a single or batched JSON-RPC HTTP request.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		s.writeJSON(w, errorResponse(nil, codeParseError, KindInvalidParams, "parse error"))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var batch []JSONRPCRequest
		if err := json.Unmarshal(body, &batch); err != nil {
			s.writeJSON(w, errorResponse(nil, codeParseError, KindInvalidParams, "parse error"))
			return
		}
		if len(batch) == 0 || len(batch) > maxBatchSize {
			s.writeJSON(w, errorResponse(nil, codeInvalidParams, KindInvalidParams,
				fmt.Sprintf("batch must hold 1 to %d requests", maxBatchSize)))
			return
		}
		responses := make([]*JSONRPCResponse, len(batch))
		for i := range batch {
			responses[i] = s.handler.Handle(r.Context(), &batch[i])
		}
		s.writeJSON(w, responses)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSON(w, errorResponse(nil, codeParseError, KindInvalidParams, "parse error"))
		return
	}
	s.writeJSON(w, s.handler.Handle(r.Context(), &req))
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	pending, queued := s.pool.Stats()
	s.writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"service": "inso-txpool",
		"pending": pending,
		"queued":  queued,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", "err", err)
	}
}
