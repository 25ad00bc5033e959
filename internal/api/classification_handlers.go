package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/salesloop/salesloop/internal/models"
)

// DefaultRecentLimit bounds GET /reply-classification/recent when no limit is given.
const DefaultRecentLimit = 20

// ingestReplyHandler handles POST /reply-classification: record an inbound
// reply, classifying it with the AI classifier when the caller did not
// supply a category. The feedback processor applies the enrollment
// transition asynchronously.
func (s *Server) ingestReplyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.InboundReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.ingestReplyHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.ingestReplyHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	enr, err := s.st.GetEnrollment(req.EnrollmentID)
	if err != nil {
		slog.Error("Server.ingestReplyHandler: enrollment lookup failed", "enrollmentID", req.EnrollmentID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up enrollment"))
		return
	}
	if enr == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Enrollment not found"))
		return
	}

	rc := &models.ReplyClassification{
		EnrollmentID:   req.EnrollmentID,
		Classification: req.Classification,
		Confidence:     req.Confidence,
		AIReasoning:    req.AIReasoning,
		MessageBody:    req.MessageBody,
	}
	if rc.Classification == "" {
		if s.classifier == nil {
			writeJSONResponse(w, http.StatusBadRequest,
				models.Error("classification required: no classifier configured"))
			return
		}
		result, err := s.classifier.ClassifyReply(r.Context(), req.MessageBody)
		if err != nil {
			slog.Error("Server.ingestReplyHandler: classification failed", "enrollmentID", req.EnrollmentID, "error", err)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to classify reply"))
			return
		}
		rc.Classification = result.Category
		rc.Confidence = result.Confidence
		rc.AIReasoning = result.Reasoning
	}

	if err := s.st.AddReplyClassification(rc); err != nil {
		slog.Error("Server.ingestReplyHandler: store failed", "enrollmentID", req.EnrollmentID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record reply"))
		return
	}
	slog.Info("Server.ingestReplyHandler: reply recorded",
		"classificationID", rc.ID, "enrollmentID", rc.EnrollmentID, "classification", rc.Classification)
	writeJSONResponse(w, http.StatusAccepted, models.Success(rc))
}

// recentClassificationsHandler handles GET /reply-classification/recent.
func (s *Server) recentClassificationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	recent, err := s.st.ListRecentClassifications(limit)
	if err != nil {
		slog.Error("Server.recentClassificationsHandler: query failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list classifications"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(recent))
}

// blocklistHandler handles GET (list) and POST (add) on /blocklist.
func (s *Server) blocklistHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		entries, err := s.st.ListBlocklist()
		if err != nil {
			slog.Error("Server.blocklistHandler: query failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list blocklist"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(entries))
	case http.MethodPost:
		var entry models.BlocklistEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			slog.Warn("Server.blocklistHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if entry.Email == "" && entry.Phone == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("blocklist entry requires an email or a phone"))
			return
		}
		if entry.Source == "" {
			entry.Source = "manual"
		}
		if err := s.st.AddBlocklistEntry(&entry); err != nil {
			slog.Error("Server.blocklistHandler: store failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to add blocklist entry"))
			return
		}
		slog.Info("Server.blocklistHandler: entry added", "entryID", entry.ID)
		writeJSONResponse(w, http.StatusCreated, models.Success(entry))
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
