// Package server exposes the service over HTTP and a websocket live channel.
package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/imishinist/runboard/internal/broadcast"
	"github.com/imishinist/runboard/internal/discovery"
	rberrors "github.com/imishinist/runboard/internal/errors"
	"github.com/imishinist/runboard/internal/service"
)

// Server is the HTTP handler for the dashboard API.
type Server struct {
	svc          *service.Service
	logger       *slog.Logger
	writeTimeout time.Duration
	mux          *http.ServeMux
}

// New wires the routes. writeTimeout bounds each websocket send.
func New(svc *service.Service, logger *slog.Logger, writeTimeout time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:          svc,
		logger:       logger,
		writeTimeout: writeTimeout,
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /api/files/{id}/{path...}", s.handleFile)
	s.mux.HandleFunc("GET /api/config", s.handleGetConfig)
	s.mux.HandleFunc("POST /api/config/paths", s.handleAddPath)
	s.mux.Handle("GET /ws", websocket.Handler(s.handleWS))
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.List(r.Context())
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := s.svc.Detail(r.Context(), r.URL.Query().Get("project"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.svc.File(r.Context(), r.URL.Query().Get("project"), r.PathValue("id"), r.PathValue("path"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	http.ServeContent(w, r, f.Name, f.ModTime, bytes.NewReader(f.Data))
}

type configResponse struct {
	Paths []string               `json:"paths"`
	Roots []discovery.RootStatus `json:"roots"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{Paths: s.svc.Paths(), Roots: s.svc.Roots()})
}

// addPathRequest is the JSON body for POST /api/config/paths.
type addPathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleAddPath(w http.ResponseWriter, r *http.Request) {
	var req addPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, `{"error":"path is required"}`, http.StatusBadRequest)
		return
	}
	if err := s.svc.AddPath(req.Path); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Paths: s.svc.Paths(), Roots: s.svc.Roots()})
}

func (s *Server) handleWS(ws *websocket.Conn) {
	conn := broadcast.NewWebsocketConn(ws, s.writeTimeout)
	s.svc.Subscribe(conn)
	defer s.svc.Unsubscribe(conn)

	conn.Wait()
}

// writeError maps not-found and traversal alike to 404 so responses never
// reveal whether a path exists outside a run.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if rberrors.IsNotFound(err) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	s.logger.Error("request failed", "error", err)
	http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
