package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/yuin/goldmark"

	"github.com/peakgear/gearscout/internal/database"
	"github.com/peakgear/gearscout/internal/discovery"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// ErrRunInProgress means another discovery run currently holds the run lock.
var ErrRunInProgress = errors.New("a discovery run is already in progress")

// Runner triggers discovery runs. *discovery.Agent satisfies it.
type Runner interface {
	Run(ctx context.Context, req discovery.Request) (*discovery.Report, error)
}

// Server is the HTTP server for the review dashboard and the discovery API.
type Server struct {
	db    *database.DB
	agent Runner
	pages map[string]*template.Template
	mux   *http.ServeMux

	// runMu serializes discovery runs; a second trigger while one is in
	// flight gets 409 instead of queueing.
	runMu sync.Mutex
}

// New creates a new Server.
func New(db *database.DB, agent Runner) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "candidate.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, agent: agent, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/candidates/", s.handleCandidate)
	s.mux.HandleFunc("/api/discovery/run", s.handleDiscoveryRun)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	var status *database.Status
	if q := r.URL.Query().Get("status"); q != "" {
		st := database.Status(q)
		status = &st
	}

	candidates, err := s.db.ListCandidates(status)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats()
	runs, _ := s.db.ListRuns(5)

	s.render(w, "index.html", map[string]any{
		"Candidates": candidates,
		"Stats":      stats,
		"Runs":       runs,
		"Filter":     r.URL.Query().Get("status"),
	})
}

func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimPrefix(r.URL.Path, "/candidates/")
	if hash == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	candidate, err := s.db.GetCandidateByHash(hash)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if candidate == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "candidate.html", map[string]any{
		"Candidate": candidate,
	})
}

// handleDiscoveryRun triggers a discovery run. Admin callers authenticate
// with a bearer token, the scheduler with the X-Discovery-Secret header.
func (s *Server) handleDiscoveryRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req := requestFrom(r)

	if !s.runMu.TryLock() {
		writeJSONError(w, http.StatusConflict, "a discovery run is already in progress")
		return
	}
	defer s.runMu.Unlock()

	report, err := s.agent.Run(r.Context(), req)
	switch {
	case errors.Is(err, discovery.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	case errors.Is(err, discovery.ErrDisabled), errors.Is(err, discovery.ErrNotConfigured):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		// A partial run still produced a report worth returning.
		log.Printf("Discovery run failed: %v", err)
		if report != nil {
			writeJSON(w, http.StatusInternalServerError, report)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "discovery run failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// TriggerScheduled runs discovery under the same serialization as the HTTP
// surface. The in-process scheduler calls this so cron ticks and API triggers
// never overlap.
func (s *Server) TriggerScheduled(ctx context.Context, secret string) (*discovery.Report, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()
	return s.agent.Run(ctx, discovery.Request{Source: discovery.SourceScheduled, Credential: secret})
}

func requestFrom(r *http.Request) discovery.Request {
	if secret := r.Header.Get("X-Discovery-Secret"); secret != "" {
		return discovery.Request{Source: discovery.SourceScheduled, Credential: secret}
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return discovery.Request{Source: discovery.SourceManual, Credential: token}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func (s *Server) Serve(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}
