package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"remindd/internal/reminder"

	rtsup "remindd/internal/runtime/supervisor"
)

type healthzResponse struct {
	Status     string         `json:"status"`
	State      reminder.State `json:"state"`
	UptimeSec  int64          `json:"uptime_sec"`
	Goroutines rtsup.Counters `json:"goroutines"`
}

type annotateRequest struct {
	At   string `json:"at"`
	Note string `json:"note"`
}

type heatmapResponse struct {
	Hours [24]int `json:"hours"`
	Total int     `json:"total"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sup := s.sup
	started := s.startAt
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, healthzResponse{
		Status:     "ok",
		State:      s.rem.Snapshot().State,
		UptimeSec:  int64(time.Since(started) / time.Second),
		Goroutines: sup.Counters(),
	})
}

// handleGetConfig returns the settings the next session will run with.
func (s *Service) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.rem.Defaults())
}

// handlePutConfig replaces the stored default settings. The body is a
// complete settings document; unknown fields are rejected.
func (s *Service) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var set reminder.Settings
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&set); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.rem.Configure(r.Context(), set); err != nil {
		if reminder.IsValidation(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.rem.Defaults())
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.rem.Status(r.Context()))
}

// handleStart begins a session. An empty body uses the stored defaults; a
// non-empty body is a complete settings override for this session only.
func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var override *reminder.Settings
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var set reminder.Settings
	switch err := dec.Decode(&set); {
	case err == nil:
		override = &set
	case errors.Is(err, io.EOF):
		// no body
	default:
		respondError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	if err := s.rem.Start(r.Context(), override); err != nil {
		switch {
		case errors.Is(err, reminder.ErrAlreadyRunning):
			respondError(w, http.StatusConflict, "session already running")
		case reminder.IsValidation(err):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, s.rem.Snapshot())
}

// handleStop ends the session. Stopping an idle engine is not an error.
func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	s.rem.Stop(r.Context())
	respondJSON(w, http.StatusOK, s.rem.Snapshot())
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.rem.History(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history read failed: "+err.Error())
		return
	}
	if entries == nil {
		entries = []reminder.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Service) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.rem.ClearHistory(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, "history clear failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{Status: "cleared"})
}

// handleAnnotate attaches a note to a history entry. An absent "at" targets
// the most recent entry.
func (s *Service) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Note == "" {
		respondError(w, http.StatusBadRequest, "note is required")
		return
	}
	var at time.Time
	if req.At != "" {
		t, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid at: "+err.Error())
			return
		}
		at = t
	}
	if err := s.rem.Annotate(r.Context(), at, req.Note); err != nil {
		if errors.Is(err, reminder.ErrNoEntry) {
			respondError(w, http.StatusNotFound, "history entry not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{Status: "annotated"})
}

func (s *Service) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	hours, err := s.rem.Heatmap(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "heatmap read failed: "+err.Error())
		return
	}
	total := 0
	for _, n := range hours {
		total += n
	}
	respondJSON(w, http.StatusOK, heatmapResponse{Hours: hours, Total: total})
}
