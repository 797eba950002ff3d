// Package rest is the HTTP gateway: routing, bearer authentication and the
// mapping of service errors to status codes.
package rest

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/dmitrijs2005/gophaudio/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophaudio/internal/server/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type userService interface {
	Signup(ctx context.Context, email, password string) (*services.Token, error)
	Login(ctx context.Context, email, password string) (*services.Token, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
	DeleteAccount(ctx context.Context, user *models.User) error
}

type artifactService interface {
	List(ctx context.Context, user *models.User) ([]*models.Artifact, error)
	Download(ctx context.Context, user *models.User, filename string) (*models.Artifact, []byte, error)
	DownloadURL(filename string) string
}

type conversionService interface {
	TextToAudio(ctx context.Context, user *models.User, text, language string) (*models.Artifact, error)
	VideoToAudio(ctx context.Context, user *models.User, originalName string, r io.Reader) (*models.Artifact, error)
}

// Pinger is a dependency /readyz checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check names a Pinger in readiness output.
type Check struct {
	Name   string
	Pinger Pinger
}

// Options carries the gateway's tunables.
type Options struct {
	Address         string
	MaxUploadSize   int64
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Version         string
}

type Server struct {
	opts       Options
	users      userService
	artifacts  artifactService
	conversion conversionService
	limiter    ratelimit.Limiter
	checks     []Check
	logger     logging.Logger
}

func NewServer(opts Options, us userService, as artifactService, cs conversionService,
	limiter ratelimit.Limiter, checks []Check, logger logging.Logger) *Server {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Server{
		opts:       opts,
		users:      us,
		artifacts:  as,
		conversion: cs,
		limiter:    limiter,
		checks:     checks,
		logger:     logger.With("module", "http_server"),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(cors(s.opts.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/", s.root)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/signup", s.signup)
		r.Post("/token", s.token)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/my-files", s.myFiles)
		r.Post("/convert/text-to-audio", s.textToAudio)
		r.Post("/convert/video-to-audio", s.videoToAudio)
		r.Get("/download/{filename}", s.download)
		r.Delete("/me", s.deleteMe)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
