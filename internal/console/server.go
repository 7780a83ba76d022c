// Package console is the operator's HTTP view of the running system: live stream surfaces,
// overlays, streaming control and gallery management.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/andresmejia3/faceguard/internal/coordinator"
	"github.com/andresmejia3/faceguard/internal/enroll"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/types"
)

// Controller is the streaming side of the console. The coordinator satisfies it.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Toggle(ctx context.Context) (bool, error)
	Streaming() bool
	ClearGallery(ctx context.Context) error
	Streams() []coordinator.StreamInfo
}

type Options struct {
	Addr          string
	SurfaceWidth  int
	SurfaceHeight int
	// Modes lists the streams that have a surface; others answer 404.
	Modes []types.Mode
}

type Server struct {
	opts     Options
	ctrl     Controller
	gallery  *gallery.Gallery
	enroller *enroll.Enroller
	log      zerolog.Logger

	slots  map[types.Mode]*slot
	router *chi.Mux
	http   *http.Server

	// base outlives requests; capture started from a handler runs on it
	base context.Context
}

// New builds the console. ctrl and enroller may be set later with Attach, since the
// coordinator needs the console as its render sink.
func New(opts Options, gal *gallery.Gallery, log zerolog.Logger) *Server {
	s := &Server{
		opts:    opts,
		gallery: gal,
		log:     log.With().Str("component", "console").Logger(),
		slots:   make(map[types.Mode]*slot, len(opts.Modes)),
		router:  chi.NewRouter(),
		base:    context.Background(),
	}
	for _, m := range opts.Modes {
		s.slots[m] = newSlot()
	}

	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(chiMiddleware.Recoverer)
	s.setupRoutes()

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: MJPEG responses stay open for as long as the viewer watches
	}
	return s
}

// Attach connects the streaming controller and the enroller.
func (s *Server) Attach(ctrl Controller, enroller *enroll.Enroller) {
	s.ctrl = ctrl
	s.enroller = enroller
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/health", s.health)

	r.Route("/streams", func(r chi.Router) {
		r.Get("/", s.listStreams)
		r.Post("/start", s.startStreams)
		r.Post("/stop", s.stopStreams)
		r.Post("/toggle", s.toggleStreams)

		r.Route("/{mode}", func(r chi.Router) {
			r.Get("/overlay", s.streamOverlay)
			r.Get("/frame.jpg", s.streamFrame)
			r.Get("/mjpeg", s.streamMJPEG)
		})
	})

	r.Route("/gallery", func(r chi.Router) {
		r.Get("/", s.listGallery)
		r.Post("/clear", s.clearGallery)
		r.Post("/enroll", s.enrollImages)
		r.Get("/{index}/thumbnail.jpg", s.thumbnail)
	})
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// requestLogger logs every request through zerolog once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Str("request_id", chiMiddleware.GetReqID(r.Context())).
				Dur("took", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.base = ctx
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("console listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start console: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down console: %w", err)
	}
	return nil
}
