package controlplane

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mesbot/dispatch/internal/config"
	"github.com/mesbot/dispatch/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads and unmarshals a JSON body, translating the "request
// body too large" error from http.MaxBytesReader (applied by the
// limitBody middleware) into a 413 response.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if strings.Contains(err.Error(), "too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": s.cfg.Metrics.Uptime().String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Metrics.Snapshot())
}

// handleOverview aggregates KPIs across the dispatcher, messenger
// adapter, metrics registry, and store, per spec.md §4.6.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Metrics.Snapshot()

	overview := map[string]any{
		"build":    s.buildInfo(),
		"uptime":   snap.UptimeSeconds,
		"memory":   snap.Memory,
		"counters": snap.Counters,
		"gauges":   snap.Gauges,
	}

	if s.cfg.Store != nil {
		if stats, err := s.cfg.Store.Stats(); err == nil {
			overview["store"] = stats
		}
	}
	if s.cfg.Dispatcher != nil {
		overview["dispatcher"] = map[string]any{
			"state":           s.cfg.Dispatcher.State().String(),
			"active_handlers": s.cfg.Dispatcher.ActiveHandlers(),
		}
	}
	if s.cfg.Adapter != nil {
		overview["messenger"] = map[string]any{
			"self_id": string(s.cfg.Adapter.SelfID()),
		}
	}
	if s.cfg.Events != nil {
		overview["event_subscribers"] = s.cfg.Events.SubscriberCount()
	}

	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, err := s.cfg.Store.ListUsers(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := s.cfg.Store.GetUser(store.ID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

func (s *Server) handleSetBlocked(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req blockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.cfg.Store.SetBlocked(store.ID(id), req.Blocked); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "blocked": req.Blocked})
}

type adminRequest struct {
	Admin bool `json:"admin"`
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req adminRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.cfg.Store.SetAdmin(store.ID(id), req.Admin); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "admin": req.Admin})
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	threads, err := s.cfg.Store.ListThreads(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	thread, err := s.cfg.Store.GetThread(store.ID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if thread == nil {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// handleListMessages requires a thread query param, per spec.md §4.6
// ("thread required; 400 otherwise").
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.URL.Query().Get("thread")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "thread is required")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	messages, err := s.cfg.Store.GetMessages(store.ID(threadID), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleGetEnv(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Config.GetEditableEnv())
}

func (s *Server) handlePostEnv(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if !decodeJSON(w, r, &updates) {
		return
	}
	applied, err := config.UpdateEnv(s.cfg.Config, s.cfg.EnvPath, updates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "applied": applied})
}
