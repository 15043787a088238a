// Package server implements the HTTP surface (§6): chi routing, CORS, and
// the translation from tagged errtypes errors to HTTP responses. Grounded
// on the teacher's chi-based route registration (the `chi.URLParam`
// idiom used throughout ocdav/ocs handlers) and, for CORS, the teacher's
// own github.com/rs/cors dependency — permissive by default since this
// service's access control is explicitly a reverse-proxy concern.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/Dangoware/confetti-box/internal/config"
	"github.com/Dangoware/confetti-box/pkg/appctx"
	"github.com/Dangoware/confetti-box/pkg/lookup"
	"github.com/Dangoware/confetti-box/pkg/upload"
)

// Server wires the upload and lookup services to chi routes and owns the
// underlying *http.Server for graceful shutdown.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// NewHandler builds the full chi-routed, CORS-wrapped, logger-scoped HTTP
// handler for the service's surface (§6). Split out from New so tests can
// drive the routes directly with httptest without binding a real listener.
func NewHandler(upSvc *upload.Service, lkSvc *lookup.Service, log zerolog.Logger) http.Handler {
	h := &handlers{upload: upSvc, lookup: lkSvc, log: log}

	r := chi.NewRouter()
	r.Post("/upload/chunked", h.startChunked)
	r.Post("/upload/chunked/{uuid}", h.continueChunked)
	r.Get("/upload/chunked/{uuid}", h.finishChunked)
	r.Get("/upload/websocket", h.websocketUpload)
	r.Get("/info", h.info)
	r.Get("/info/{mmid}", h.infoByMMID)
	r.Get("/f/{mmid}", h.fetchByMMID)
	r.Get("/f/{mmid}/{name}", h.fetchByMMIDAndName)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)

	return withLogger(corsHandler, log)
}

// New builds a Server listening on cfg.Server.Address:cfg.Server.Port.
func New(cfg config.Settings, upSvc *upload.Service, lkSvc *lookup.Service, log zerolog.Logger) *Server {
	addr := cfg.Server.Address + ":" + strconv.Itoa(int(cfg.Server.Port))
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: NewHandler(upSvc, lkSvc, log),
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func withLogger(next http.Handler, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := appctx.WithLogger(r.Context(), log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
