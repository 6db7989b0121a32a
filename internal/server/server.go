package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/authz"
	"github.com/ButyrinIA/lostfound/internal/blob"
	"github.com/ButyrinIA/lostfound/internal/config"
	"github.com/ButyrinIA/lostfound/internal/identity"
	"github.com/ButyrinIA/lostfound/internal/metrics"
	"github.com/ButyrinIA/lostfound/internal/post"
	"github.com/ButyrinIA/lostfound/internal/storage"
)

type Deps struct {
	Posts    *post.Service
	Admins   storage.AdminDirectory
	Cache    *authz.Cache
	Verifier *identity.Verifier
	Blobs    blob.Store
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

type Server struct {
	cfg      *config.Config
	deps     Deps
	limiter  *limiterPool
	upgrader websocket.Upgrader
	handler  http.Handler
	logger   *zap.Logger
}

func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newLimiterPool(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: deps.Logger,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/blobs/{path:.+}", s.handleBlob).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/posts", s.handleListPosts).Methods(http.MethodGet)
	api.Handle("/posts", s.rateLimited(http.HandlerFunc(s.handleCreatePost))).Methods(http.MethodPost)
	api.HandleFunc("/posts/feed", s.handleFeed).Methods(http.MethodGet)
	api.Handle("/posts/{id}", s.rateLimited(http.HandlerFunc(s.handleDeletePost))).Methods(http.MethodDelete)
	api.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/admins/cache", s.handleFlushAdminCache).Methods(http.MethodDelete)
	api.HandleFunc("/admins/{id}", s.handleSetAdmin).Methods(http.MethodPut)

	return r
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server_listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("server_shutting_down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
