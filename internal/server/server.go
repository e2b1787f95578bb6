// Package server exposes face prediction, object detection and the identity
// gallery over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/andresmejia3/aist/internal/gallery"
	"github.com/andresmejia3/aist/internal/identity"
	"github.com/andresmejia3/aist/internal/imageio"
	"github.com/andresmejia3/aist/internal/recognize"
	"github.com/andresmejia3/aist/internal/watch"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBody      int64 // bytes accepted per image upload
}

// Server serves a Recognizer and, optionally, a Watcher. Engines answer one
// frame at a time, so requests to the same engine are serialised.
type Server struct {
	router  chi.Router
	cfg     Config
	rec     *recognize.Recognizer
	watcher *watch.Watcher
	logger  *slog.Logger

	faceMu   sync.Mutex
	detectMu sync.Mutex
}

// New builds the router. w may be nil, in which case /v1/detect answers 503.
func New(cfg Config, rec *recognize.Recognizer, w *watch.Watcher) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if rec == nil {
		return nil, fmt.Errorf("a recognizer is required")
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.MaxBody == 0 {
		cfg.MaxBody = 20 << 20
	}

	s := &Server{cfg: cfg, rec: rec, watcher: w, logger: slog.Default()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Post("/detect", s.handleDetect)
		r.Get("/gallery", s.handleGallery)
	})
	s.router = r
	return s, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}

type healthBody struct {
	Status     string `json:"status"`
	Identities int    `json:"identities"`
	Detect     bool   `json:"detect"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthBody{
		Status:     "ok",
		Identities: s.rec.Gallery.Len(),
		Detect:     s.watcher != nil,
	})
}

type faceBody struct {
	Box      [4]int  `json:"box"`
	Prob     float64 `json:"prob"`
	Outcome  string  `json:"outcome"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

type predictBody struct {
	Result string     `json:"result"`
	Faces  []faceBody `json:"faces"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	threshold := s.rec.Threshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || math.IsNaN(t) {
			respondError(w, http.StatusBadRequest, "threshold must be a non-negative number")
			return
		}
		threshold = t
	}

	body, ok := s.readImage(w, r)
	if !ok {
		return
	}

	s.faceMu.Lock()
	matches, err := s.rec.PredictFaces(body, threshold)
	s.faceMu.Unlock()
	if err != nil {
		s.fail(w, "predict", err)
		return
	}

	out := predictBody{Result: identity.NoOneLabel, Faces: make([]faceBody, 0, len(matches))}
	for _, m := range matches {
		out.Result = m.Result.String()
		out.Faces = append(out.Faces, faceBody{
			Box:      m.Face.Loc,
			Prob:     m.Face.Prob,
			Outcome:  m.Result.Outcome.String(),
			Label:    m.Result.String(),
			Distance: m.Result.Distance,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if s.watcher == nil {
		respondError(w, http.StatusServiceUnavailable, "object detection is not enabled")
		return
	}
	body, ok := s.readImage(w, r)
	if !ok {
		return
	}

	s.detectMu.Lock()
	rec, err := s.watcher.PredictBytes(body)
	s.detectMu.Unlock()
	if err != nil {
		s.fail(w, "detect", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="gallery.gob"`)
	if err := gallery.Encode(w, s.rec.Gallery); err != nil {
		s.logger.Error("encoding gallery", "error", err)
	}
}

func (s *Server) readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, http.StatusRequestEntityTooLarge, "image too large")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return nil, false
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "empty body, send an image")
		return nil, false
	}
	return body, true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, imageio.ErrUnsupported):
		respondError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, identity.ErrDimensionMismatch):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", "op", op, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
