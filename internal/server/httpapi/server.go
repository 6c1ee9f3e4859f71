// Package httpapi exposes FundKeeper over HTTP: admin routes guarded by a
// bearer JWT and public read-only project views.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fundkeeper/internal/logging"
	"github.com/dmitrijs2005/fundkeeper/internal/server/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds admin request bodies, which carry base64 images.
const maxBodyBytes = 32 << 20

const shutdownTimeout = 10 * time.Second

type ProjectService interface {
	CreateProject(ctx context.Context, draft *models.ProjectDraft) (*models.Project, error)
	UpdateProject(ctx context.Context, id string, draft *models.ProjectDraft) (*models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	OriginalURL(ctx context.Context, id, kind string) (string, error)
}

type HistoryService interface {
	ListHistory(ctx context.Context, projectID string) ([]*models.HistoryEntry, error)
}

type AuditService interface {
	Check(ctx context.Context, id string) error
	Repair(ctx context.Context, id string) (*models.Project, error)
}

type Server struct {
	address        string
	projects       ProjectService
	history        HistoryService
	audit          AuditService
	logger         logging.Logger
	jwtSecret      []byte
	requestTimeout time.Duration
}

func NewServer(address string, l logging.Logger, ps ProjectService, hs HistoryService, as AuditService,
	secretKey string, requestTimeout time.Duration) *Server {
	return &Server{
		address:        address,
		projects:       ps,
		history:        hs,
		audit:          as,
		logger:         l.With("module", "http_server"),
		jwtSecret:      []byte(secretKey),
		requestTimeout: requestTimeout,
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/projects/{id}", func(r chi.Router) {
		r.Get("/", s.handlePublicProject)
		r.Get("/image", s.handlePublicImage)
		r.Get("/qr", s.handlePublicQR)
	})

	r.Route("/api/admin/projects", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
				next.ServeHTTP(w, r)
			})
		})

		r.Get("/", s.handleListProjects)
		r.Post("/", s.handleCreateProject)
		r.Get("/{id}", s.handleGetProject)
		r.Put("/{id}", s.handleUpdateProject)
		r.Get("/{id}/history", s.handleListHistory)
		r.Get("/{id}/audit", s.handleAudit)
		r.Post("/{id}/audit/repair", s.handleRepair)
		r.Get("/{id}/originals/{kind}", s.handleOriginal)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled. It returns
// only after in-flight requests have drained or the shutdown timeout hit.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Serve returns as soon as Shutdown starts; wait for the drain.
	<-stopped
	return nil
}
