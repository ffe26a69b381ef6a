// Package httpapi is the request surface: it accepts one execution request,
// composes the planner and engine, and streams progress events to the caller.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"loom/internal/documents"
	"loom/internal/engine"
)

// Server exposes the workflow execution API.
type Server struct {
	engine  *engine.Engine
	library *documents.Library
	timeout time.Duration
	mux     *http.ServeMux
}

func NewServer(eng *engine.Engine, library *documents.Library, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	s := &Server{engine: eng, library: library, timeout: timeout, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/corpora", s.handleListCorpora)
	s.mux.HandleFunc("POST /api/workflow/execute", s.handleExecute)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleListCorpora(w http.ResponseWriter, r *http.Request) {
	type corpusInfo struct {
		Name      string `json:"name"`
		Documents int    `json:"documents"`
	}
	var out []corpusInfo
	for _, name := range s.library.Corpora() {
		out = append(out, corpusInfo{Name: name, Documents: len(s.library.Docs(name))})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"corpora": out})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
