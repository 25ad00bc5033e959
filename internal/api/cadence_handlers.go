package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/salesloop/salesloop/internal/models"
)

// cadencesHandler handles GET (list) and POST (create) on /cadences.
func (s *Server) cadencesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.listCadences(w)
	case http.MethodPost:
		s.createCadence(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.cadencesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listCadences(w http.ResponseWriter) {
	cadences, err := s.st.ListCadences()
	if err != nil {
		slog.Error("Server.listCadences: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list cadences"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(cadences))
}

func (s *Server) createCadence(w http.ResponseWriter, r *http.Request) {
	var c models.Cadence
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		slog.Warn("Server.createCadence: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if c.Status == "" {
		c.Status = models.CadenceStatusDraft
	}
	if err := c.Validate(); err != nil {
		slog.Warn("Server.createCadence: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.CreateCadence(&c); err != nil {
		slog.Error("Server.createCadence: store failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create cadence"))
		return
	}
	slog.Info("Server.createCadence: cadence created", "cadenceID", c.ID, "steps", len(c.Steps))
	writeJSONResponse(w, http.StatusCreated, models.Success(c))
}

// cadenceHandler handles GET, PUT, DELETE on /cadences/{id}.
func (s *Server) cadenceHandler(w http.ResponseWriter, r *http.Request, id string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		c, err := s.st.GetCadence(id)
		if err != nil {
			slog.Error("Server.cadenceHandler: lookup failed", "cadenceID", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get cadence"))
			return
		}
		if c == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Cadence not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(c))
	case http.MethodPut:
		s.updateCadence(w, r, id)
	case http.MethodDelete:
		if err := s.st.DeleteCadence(id); err != nil {
			slog.Error("Server.cadenceHandler: delete failed", "cadenceID", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete cadence"))
			return
		}
		slog.Info("Server.cadenceHandler: cadence deleted", "cadenceID", id)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Cadence deleted", nil))
	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) updateCadence(w http.ResponseWriter, r *http.Request, id string) {
	var c models.Cadence
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		slog.Warn("Server.updateCadence: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	c.ID = id
	if err := c.Validate(); err != nil {
		slog.Warn("Server.updateCadence: validation failed", "cadenceID", id, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.UpdateCadence(&c); err != nil {
		if errors.Is(err, models.ErrCadenceNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Cadence not found"))
			return
		}
		slog.Error("Server.updateCadence: store failed", "cadenceID", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update cadence"))
		return
	}
	slog.Info("Server.updateCadence: cadence updated", "cadenceID", id)
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

// tasksHandler handles GET /cadences/{id}/tasks.
func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request, cadenceID string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tasks, err := s.st.ListManualTasksByCadence(cadenceID)
	if err != nil {
		slog.Error("Server.tasksHandler: query failed", "cadenceID", cadenceID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list tasks"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tasks))
}

// overviewStatsHandler handles GET /cadences/stats/overview.
func (s *Server) overviewStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	overview, err := s.stats.Overview()
	if err != nil {
		slog.Error("Server.overviewStatsHandler: aggregation failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(overview))
}
