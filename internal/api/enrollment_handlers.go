package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/salesloop/salesloop/internal/models"
)

// enrollmentsHandler handles GET (list) and POST (enroll) on
// /cadences/{id}/enrollments.
func (s *Server) enrollmentsHandler(w http.ResponseWriter, r *http.Request, cadenceID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		enrollments, err := s.st.ListEnrollmentsByCadence(cadenceID)
		if err != nil {
			slog.Error("Server.enrollmentsHandler: query failed", "cadenceID", cadenceID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list enrollments"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(enrollments))
	case http.MethodPost:
		s.createEnrollment(w, r, cadenceID)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createEnrollment(w http.ResponseWriter, r *http.Request, cadenceID string) {
	var req models.EnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createEnrollment: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	enr, err := s.engine.Enroll(cadenceID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCadenceNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Cadence not found"))
		case errors.Is(err, models.ErrCadenceNotActive):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		case errors.Is(err, models.ErrAlreadyEnrolled):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		case errors.Is(err, models.ErrNoSubject), errors.Is(err, models.ErrBothSubjects):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.createEnrollment: enroll failed", "cadenceID", cadenceID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to enroll"))
		}
		return
	}
	slog.Info("Server.createEnrollment: enrolled", "enrollmentID", enr.ID, "cadenceID", cadenceID)
	writeJSONResponse(w, http.StatusCreated, models.Success(enr))
}

// enrollmentActionHandler handles PUT /cadences/enrollments/{id}/pause and
// /cadences/enrollments/{id}/resume.
func (s *Server) enrollmentActionHandler(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", http.MethodPut)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var enr *models.CadenceEnrollment
	var err error
	switch action {
	case "pause":
		enr, err = s.engine.Pause(id)
	case "resume":
		enr, err = s.engine.Resume(id)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEnrollmentNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Enrollment not found"))
		case errors.Is(err, models.ErrEnrollmentConflict):
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		default:
			slog.Error("Server.enrollmentActionHandler: action failed", "enrollmentID", id, "action", action, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update enrollment"))
		}
		return
	}
	slog.Info("Server.enrollmentActionHandler: applied", "enrollmentID", id, "action", action)
	writeJSONResponse(w, http.StatusOK, models.Success(enr))
}
