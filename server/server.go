// Package server implements the AgentOS HTTP API: task intake, inspection,
// and operator overrides on top of the store and event bus.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentsmith/agentos/config"
	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/internal/version"
	"github.com/agentsmith/agentos/store"
)

// Server is the AgentOS HTTP server.
type Server struct {
	cfg     config.ServerConfig
	store   store.Store
	bus     *events.Bus
	logger  *slog.Logger
	mux     *http.ServeMux
	httpSrv *http.Server

	startTime time.Time
}

// New creates a server over the given store and bus.
func New(cfg config.ServerConfig, st store.Store, bus *events.Bus, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		bus:       bus,
		logger:    logger,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the server's routing handler. Intended for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins listening. It blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":3001"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.health)
	s.mux.HandleFunc("GET /api/stats", s.stats)

	s.mux.HandleFunc("GET /api/tasks", s.listTasks)
	s.mux.HandleFunc("POST /api/tasks", s.createTask)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	s.mux.HandleFunc("PATCH /api/tasks/{id}", s.updateTask)
	s.mux.HandleFunc("GET /api/tasks/{id}/messages", s.listTaskMessages)

	s.mux.HandleFunc("GET /api/agents", s.listAgents)
	s.mux.HandleFunc("GET /api/activity", s.listActivity)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	byStatus := make(map[string]int)
	for _, st := range []store.TaskStatus{
		store.StatusIntake, store.StatusAssigned, store.StatusInProgress,
		store.StatusBlocked, store.StatusReview, store.StatusDone,
		store.StatusCancelled,
	} {
		st := st
		n, err := s.store.CountTasks(store.TaskFilter{Status: &st})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		byStatus[string(st)] = n
	}

	agents, err := s.store.ListAgents(store.AgentFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks_by_status": byStatus,
		"agent_count":     len(agents),
		"uptime_seconds":  int(time.Since(s.startTime).Seconds()),
	})
}

// --- Task handlers ---

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TaskFilter{OrderBy: store.OrderCreatedDesc}

	if v := q.Get("status"); v != "" {
		st := store.TaskStatus(v)
		filter.Status = &st
	}
	if v := q.Get("assignee_id"); v != "" {
		filter.AssigneeID = v
	}
	if v := q.Get("parent_task_id"); v != "" {
		filter.ParentTaskID = v
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	tasks, err := s.store.ListTasks(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// createTask accepts a new goal or task and announces it to the kernel.
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var t store.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if t.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	id, err := s.store.CreateTask(&t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: id})
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.GetTask(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// updateTask applies an operator override. Unlike the control loops it may
// mutate terminal tasks, e.g. to reopen a cancelled goal.
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetTask(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Decode partial update over the existing record.
	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	existing.ID = id

	if err := s.store.UpdateTask(existing); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) listTaskMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs, err := s.store.ListMessages(store.MessageFilter{TaskID: id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []*store.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- Agent and activity handlers ---

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	filter := store.AgentFilter{}
	if v := r.URL.Query().Get("role"); v != "" {
		filter.Role = store.AgentRole(v)
	}
	agents, err := s.store.ListAgents(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []*store.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ActivityFilter{Limit: 50}

	if v := q.Get("task_id"); v != "" {
		filter.TaskID = v
	}
	if v := q.Get("agent_id"); v != "" {
		filter.AgentID = v
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	acts, err := s.store.ListActivities(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if acts == nil {
		acts = []*store.Activity{}
	}
	writeJSON(w, http.StatusOK, acts)
}
