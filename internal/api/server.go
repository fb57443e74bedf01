package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gren-lang/package-registry/internal/models"
	"github.com/gren-lang/package-registry/internal/ratelimit"
	"github.com/gren-lang/package-registry/internal/store"
	"github.com/gren-lang/package-registry/internal/telemetry"
)

// Store is the persistence the HTTP API reads and writes.
type Store interface {
	Enqueue(ctx context.Context, name, url, version string, step models.Step) (models.ImportJob, error)
	ListAll(ctx context.Context) ([]models.ImportJob, error)
	Search(ctx context.Context, query string) ([]models.SearchEntry, error)
}

// Server wires HTTP handlers for triggering imports and reading their state.
type Server struct {
	store   Store
	limiter ratelimit.Limiter
	log     *slog.Logger
}

// New constructs the API server. A nil limiter disables rate limiting.
func New(st Store, limiter ratelimit.Limiter, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: st, limiter: limiter, log: log}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter, s.log))
		r.Post("/import/init", s.handleInit)
		r.Get("/import/jobs", s.handleListJobs)
		r.Get("/search", s.handleSearch)
	})
	return r
}

type initRequest struct {
	PackageName string `json:"packageName"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	raw, err := packageNameFromRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, err := models.ParsePackageName(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	url, err := models.GitHubURL(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, err = s.store.Enqueue(r.Context(), name, url, models.AnyVersion, models.StepFindMissingVersions)
	if errors.Is(err, store.ErrDuplicateKey) {
		http.Error(w, fmt.Sprintf("an import of %s is already running", name), http.StatusConflict)
		return
	}
	if err != nil {
		s.log.Error("save initial import job failed", "name", name, "err", err)
		http.Error(w, "failed to start import", http.StatusInternalServerError)
		return
	}
	telemetry.JobsEnqueued.WithLabelValues(models.StepFindMissingVersions.String()).Inc()
	s.log.Info("begin import", "name", name, "url", url)

	http.Redirect(w, r, "/import/jobs", http.StatusSeeOther)
}

func packageNameFromRequest(w http.ResponseWriter, r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req initRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			return "", errors.New("invalid json")
		}
		return req.PackageName, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form")
	}
	return r.PostForm.Get("packageName"), nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListAll(r.Context())
	if err != nil {
		s.log.Error("list import jobs failed", "err", err)
		http.Error(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []models.ImportJob{}
	}
	if prefersText(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "%d jobs", len(jobs))
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	results, err := s.store.Search(r.Context(), query)
	if err != nil {
		s.log.Error("search failed", "query", query, "err", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []models.SearchEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

// prefersText reports whether the client asked for plain text over JSON.
func prefersText(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/plain") && !strings.Contains(accept, "application/json")
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
