package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/auth"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/config"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/imaging"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/models"
	"github.com/rahoolsingh/THUMBNAIL-LELO/internal/service"
)

// ThumbnailGenerator runs the generation pipeline for one request.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, subject, prompt string, uploads []imaging.Upload) (*service.Result, error)
}

// UserProfiles serves account state for the authenticated and admin surfaces.
type UserProfiles interface {
	Profile(ctx context.Context, subject string) (*service.Profile, error)
	GrantQuota(ctx context.Context, subject string, freeDelta, paidDelta int) (*models.User, error)
}

// PaymentWebhook handles gateway status callbacks.
type PaymentWebhook interface {
	HandleGatewayWebhook(ctx context.Context, payload []byte) error
}

type Server struct {
	cfg        config.Config
	log        *slog.Logger
	verifier   *auth.Verifier
	generation ThumbnailGenerator
	users      UserProfiles
	payments   PaymentWebhook
	router     *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, verifier *auth.Verifier, generation ThumbnailGenerator, users UserProfiles, payments PaymentWebhook) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:        cfg,
		log:        log,
		verifier:   verifier,
		generation: generation,
		users:      users,
		payments:   payments,
		router:     r,
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook/payment", s.handlePaymentWebhook)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(verifier.Middleware)
		api.Post("/generate/thumbnail", s.handleGenerateThumbnail)
		api.Get("/user/me", s.handleMe)
	})

	r.Group(func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Route("/admin", func(r chi.Router) {
			r.Get("/users/{subject}", s.handleAdminGetUser)
			r.Post("/users/{subject}/quota", s.handleAdminGrantQuota)
		})
	})

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 30*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.cfg.AdminUsername || pass != s.cfg.AdminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="thumbnail-lelo"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
