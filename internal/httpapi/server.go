// Package httpapi exposes the landscape pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/joelkehle/target-landscape/internal/artifacts"
	"github.com/joelkehle/target-landscape/internal/landscape"
)

// Runner is the pipeline entry point the server calls.
type Runner interface {
	Run(ctx context.Context, req landscape.Request) landscape.Result
}

type Server struct {
	runner  Runner
	history *artifacts.RunStore
}

// NewServer wires the API routes. history may be nil, in which case
// runs are not persisted and the history endpoints return 404.
func NewServer(runner Runner, history *artifacts.RunStore) http.Handler {
	s := &Server{runner: runner, history: history}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/landscape", s.handleLandscape)
	mux.HandleFunc("/v1/runs", s.handleListRuns)
	mux.HandleFunc("/v1/runs/", s.handleGetRun)
	mux.HandleFunc("/v1/health", s.handleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleLandscape(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req landscape.Request
	if err := json.Unmarshal(blob, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}

	res := s.runner.Run(r.Context(), req)

	var runID int64
	if s.history != nil {
		score, _ := res.Summary["crowding_score"].(float64)
		total, _ := res.Summary["total_competitors"].(int)
		id, err := s.history.Save(res.Target, score, total, string(res.Metadata.Mode),
			res.Metadata.StartedAt, res.Metadata.CompletedAt, res)
		if err != nil {
			log.Printf("httpapi: save run: %v", err)
		} else {
			runID = id
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run_id": runID, "result": res})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history not configured")
		return
	}
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.history.List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history not configured")
		return
	}
	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs/"), "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "invalid run id")
		return
	}
	run, err := s.history.Get(id)
	if err != nil {
		if errors.Is(err, artifacts.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":    run,
		"result": json.RawMessage(run.ResultJSON),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
