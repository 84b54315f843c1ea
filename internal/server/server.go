// Package server exposes the analysis pipeline over HTTP for frontends and
// scripted clients. One dataset is active at a time; loads and analyzes are
// serialized so a query never runs against a half-swapped dataset.
package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/tabq-dev/tabq/internal/ai"
	"github.com/tabq-dev/tabq/internal/config"
	"github.com/tabq-dev/tabq/internal/dataset"
	"github.com/tabq-dev/tabq/internal/generate"
	"github.com/tabq-dev/tabq/internal/memory"
	"github.com/tabq-dev/tabq/internal/pipeline"
	"github.com/tabq-dev/tabq/internal/profile"
	"github.com/tabq-dev/tabq/internal/sandbox"
)

// Server holds the active dataset session and its pipeline.
type Server struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	client *ai.Client
	mem    *memory.Store

	mu     sync.Mutex
	frame  *dataset.Frame
	prof   *profile.Profile
	runner *pipeline.Runner
}

// New wires a Server from configuration. mem may be nil.
func New(cfg *config.Config, client *ai.Client, mem *memory.Store, log *zap.SugaredLogger) *Server {
	return &Server{cfg: cfg, log: log, client: client, mem: mem}
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/load", s.handleLoad)
		r.Post("/upload", s.handleUpload)
	})
	return r
}

// ListenAndServe blocks serving the router on the configured address.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	s.log.Infow("listening", "addr", s.cfg.ListenAddr)
	return srv.ListenAndServe()
}

type errResponse struct {
	Error string `json:"error"`
}

func writeErr(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	loaded := s.frame != nil
	name := ""
	if loaded {
		name = s.frame.Name
	}
	s.mu.Unlock()
	render.JSON(w, r, map[string]any{
		"status":         "ok",
		"version":        config.Version,
		"dataset_loaded": loaded,
		"dataset":        name,
	})
}

type analyzeRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeErr(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeErr(w, r, http.StatusBadRequest, "query is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		writeErr(w, r, http.StatusBadRequest, "no dataset loaded")
		return
	}
	ans, err := s.runner.Run(r.Context(), req.Query)
	if err != nil {
		s.log.Errorw("analyze failed", "error", err)
		writeErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, r, ans)
}

type loadRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeErr(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.loadPath(req.Path); err != nil {
		writeErr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	resp := map[string]any{"dataset": s.frame.Name, "rows": s.frame.NumRows(), "columns": s.frame.ColumnNames()}
	s.mu.Unlock()
	render.JSON(w, r, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".xlsx", ".json":
	default:
		writeErr(w, r, http.StatusBadRequest, "unsupported file type")
		return
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0o755); err != nil {
		writeErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	dst := filepath.Join(s.cfg.UploadsDir, name)
	out, err := os.Create(dst)
	if err != nil {
		writeErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeErr(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	out.Close()

	if err := s.loadPath(dst); err != nil {
		writeErr(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	resp := map[string]any{"dataset": s.frame.Name, "rows": s.frame.NumRows(), "columns": s.frame.ColumnNames()}
	s.mu.Unlock()
	render.JSON(w, r, resp)
}

// loadPath swaps in a new dataset session: load, profile, fresh sandbox,
// fresh runner.
func (s *Server) loadPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path is required")
	}
	frame, err := dataset.Load(path)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prof := profile.Build(frame, s.log)
	sb, err := sandbox.NewContext(frame, time.Duration(s.cfg.ExecTimeoutSec)*time.Second, s.log)
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}
	gen := generate.New(s.client, s.mem, generate.Options{
		Model:          s.cfg.Model,
		FallbackModels: s.cfg.FallbackModels,
		Temperature:    s.cfg.Temperature,
		MaxTokens:      s.cfg.MaxTokens,
		Timeout:        time.Duration(s.cfg.GenTimeoutSec) * time.Second,
		HintThreshold:  s.cfg.MemoryThreshold,
	}, s.log)

	s.frame = frame
	s.prof = prof
	s.runner = pipeline.New(gen, sb, s.mem, prof, s.cfg.ResetPerQuery, s.log)
	s.log.Infow("dataset loaded", "name", frame.Name, "rows", frame.NumRows(), "cols", frame.NumCols())
	return nil
}
