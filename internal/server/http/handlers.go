package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/remind-keeper/internal/errs"
)

// maxBody caps request bodies.
const maxBody = 64 << 10

// OwnerRequest is the body of PUT /v1/owners/{ownerID}.
type OwnerRequest struct {
	DisplayName string `json:"display_name"`
}

// CreateRequest is the body of POST /v1/owners/{ownerID}/reminders.
type CreateRequest struct {
	Text string `json:"text"`
}

// UpdateRequest is the body of PUT /v1/owners/{ownerID}/reminders/{id}.
type UpdateRequest struct {
	Text   string    `json:"text"`
	FireAt time.Time `json:"fire_at"`
}

// UpdateResponse is returned with 200 when an edit was stored but its delivery was not rescheduled.
type UpdateResponse struct {
	Warning string `json:"warning"`
}

// ReminderJSON is a reminder as returned by the API.
type ReminderJSON struct {
	Position int       `json:"position,omitempty"`
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	FireAt   time.Time `json:"fire_at"`
	JobID    string    `json:"job_id,omitempty"`
	State    string    `json:"state,omitempty"`
}

// SweepResponse is the body returned by POST /v1/sweep.
type SweepResponse struct {
	Deleted int64 `json:"deleted"`
}

type errorJSON struct {
	Error string `json:"error"`
}

type healthJSON struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.store.Ping(r.Context()); err != nil {
			s.log.Warn("health: store unreachable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, healthJSON{Status: "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, healthJSON{Status: "ok"})
	}
}

func (s *Server) handleSweep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SweepResponse{Deleted: s.sweeper.Tick(r.Context())})
	}
}

func (s *Server) handlePutOwner() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerParam(w, r)
		if !ok {
			return
		}
		var req OwnerRequest
		if !decode(w, r, &req) {
			return
		}
		s.svc.RegisterOwner(r.Context(), owner, strings.TrimSpace(req.DisplayName))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListReminders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerParam(w, r)
		if !ok {
			return
		}
		rs := s.svc.ListForOwner(r.Context(), owner)
		out := make([]ReminderJSON, 0, len(rs))
		for i, rem := range rs {
			out = append(out, ReminderJSON{Position: i + 1, ID: rem.ID, Text: rem.Text, FireAt: rem.FireAt})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleCreateReminder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerParam(w, r)
		if !ok {
			return
		}
		var req CreateRequest
		if !decode(w, r, &req) {
			return
		}
		sub, err := s.svc.Submit(r.Context(), owner, req.Text)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ReminderJSON{
			ID:     sub.Reminder.ID,
			Text:   sub.Reminder.Text,
			FireAt: sub.Reminder.FireAt,
			JobID:  sub.JobID.String(),
			State:  string(sub.State),
		})
	}
}

func (s *Server) handleUpdateReminder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerParam(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var req UpdateRequest
		if !decode(w, r, &req) {
			return
		}
		err := s.svc.EditByID(r.Context(), owner, id, req.Text, req.FireAt)
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, errs.ErrQueue):
			// the row is already updated; a retry would not help
			s.log.Warn("edit stored without delivery", zap.Int64("owner", owner), zap.Int64("reminder", id), zap.Error(err))
			writeJSON(w, http.StatusOK, UpdateResponse{Warning: "reminder updated, delivery not rescheduled"})
		default:
			s.writeServiceError(w, err)
		}
	}
}

func (s *Server) handleDeleteReminder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := ownerParam(w, r)
		if !ok {
			return
		}
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := s.svc.DeleteByID(r.Context(), owner, id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeServiceError maps service sentinels to status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "reminder not found")
	case errors.Is(err, errs.ErrExtraction), errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errs.ErrQueue):
		s.log.Error("queue failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, "delivery queue unavailable")
	default:
		s.log.Error("service failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func ownerParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return intParam(w, r, "ownerID")
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return intParam(w, r, "id")
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorJSON{Error: msg})
}
