package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chachacholly/kairoi/internal/execution"
	"github.com/chachacholly/kairoi/internal/store"
)

const maxBodyBytes = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.store.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute pending depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute pending depth")
		return
	}

	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Pending:       depth,
	}
	if s.stats != nil {
		resp.Dispatch = s.stats.Stats()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleSubmit handles POST /v1/requests.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.JobID) == "" {
		s.writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	spec, err := execution.UnmarshalRunnerSpec(req.Runner)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.Submit(r.Context(), req.JobID, spec)
	if err != nil {
		s.logger.Error("failed to submit request", "job_id", req.JobID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit request")
		return
	}

	s.logger.Info("request submitted", "request_id", id, "job_id", req.JobID, "runner", spec.Kind())
	s.writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id.String(), Status: string(store.StatusPending)})
}

// handleGetRequest handles GET /v1/requests/{id}.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load request", "request_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load request")
		return
	}

	resp := RequestStatusResponse{
		ID:           rec.ID.String(),
		JobID:        rec.JobID,
		Status:       string(rec.Status),
		CreatedAt:    rec.CreatedAt,
		DispatchedAt: rec.DispatchedAt,
		CompletedAt:  rec.CompletedAt,
	}
	if rec.Runner != nil {
		runner, err := execution.MarshalRunnerSpec(rec.Runner)
		if err != nil {
			s.logger.Warn("stored runner cannot be encoded, omitting it", "request_id", id, "error", err)
		} else {
			resp.Runner = runner
		}
	}
	if rec.Result != nil {
		resp.Result = rec.Result.String()
	}
	if rec.Reason != nil {
		resp.Reason = *rec.Reason
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
