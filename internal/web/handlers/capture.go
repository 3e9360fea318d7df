package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/store"
)

// maxUploadSize caps classroom photo uploads at 10 MB.
const maxUploadSize = 10 << 20

// CaptureHandler handles capture session endpoints: creating a session,
// uploading the class photo, reading results, and confirming them.
type CaptureHandler struct {
	manager   *capture.Manager
	pipeline  *capture.Pipeline
	committer *capture.Committer
	directory store.DirectoryStore
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(manager *capture.Manager, pipeline *capture.Pipeline, committer *capture.Committer, directory store.DirectoryStore) *CaptureHandler {
	return &CaptureHandler{
		manager:   manager,
		pipeline:  pipeline,
		committer: committer,
		directory: directory,
	}
}

// sessionView is the JSON shape of a capture session.
type sessionView struct {
	ID            string                `json:"id"`
	ClassName     string                `json:"class_name"`
	SchoolID      int64                 `json:"school_id"`
	Status        string                `json:"status"`
	FailureReason string                `json:"failure_reason,omitempty"`
	DetectedFaces int                   `json:"detected_faces"`
	Results       *store.SessionResults `json:"results,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at,omitempty"`
}

func viewSession(s *store.CaptureSession) sessionView {
	v := sessionView{
		ID:            s.ID,
		ClassName:     s.ClassName,
		SchoolID:      s.SchoolID,
		Status:        string(s.Status),
		FailureReason: s.FailureReason,
		DetectedFaces: s.DetectedFaces,
		Results:       s.Results,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
	if !s.UpdatedAt.IsZero() {
		v.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return v
}

type createSessionRequest struct {
	ClassName string `json:"class_name"`
	SchoolID  int64  `json:"school_id"`
}

// CreateSession opens a new pending capture session for a class.
func (h *CaptureHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ClassName == "" || req.SchoolID == 0 {
		respondError(w, http.StatusBadRequest, "class_name and school_id are required")
		return
	}

	session, err := h.manager.Create(r.Context(), req.ClassName, req.SchoolID, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewSession(session))
}

// UploadPhoto receives the classroom photo for a pending session and runs
// the recognition pipeline synchronously. The response carries the match
// results for review; nothing is committed until confirmation.
func (h *CaptureHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read photo")
		return
	}

	results, err := h.pipeline.Run(r.Context(), session, imageData)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	// Reload so the response reflects the stored terminal state.
	updated, err := h.manager.Lookup(r.Context(), session.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	updated.Results = results
	respondJSON(w, http.StatusOK, viewSession(updated))
}

// GetSession returns a capture session with its results.
func (h *CaptureHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	school, err := h.directory.SchoolByID(r.Context(), session.SchoolID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	scope := access.Scope{
		SchoolID:         school.ID,
		SchoolDistrictID: school.DistrictID,
		ClassName:        session.ClassName,
	}
	if err := access.Authorize(actor, access.ActionConfirmAttendance, scope); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, viewSession(session))
}

type confirmRequest struct {
	Confirmations []capture.Confirmation `json:"confirmations"`
}

// Confirm commits the reviewed results of a completed session as
// attendance records.
func (h *CaptureHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	committed, err := h.committer.Confirm(r.Context(), sessionID, req.Confirmations, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"committed": committed})
}

type overrideRequest struct {
	StudentID int64  `json:"student_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

// Override writes a manual attendance record that takes precedence over
// any automatic one for the same student and date.
func (h *CaptureHandler) Override(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.StudentID == 0 {
		respondError(w, http.StatusBadRequest, "student_id is required")
		return
	}
	if req.Status != store.StatusPresent && req.Status != store.StatusAbsent {
		respondError(w, http.StatusBadRequest, "status must be present or absent")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if err := h.committer.Override(r.Context(), req.StudentID, date, req.Status, actor, req.Reason, req.Notes); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// loadSession resolves the sessionID URL parameter, responding with an
// error when the session does not exist.
func (h *CaptureHandler) loadSession(w http.ResponseWriter, r *http.Request) (*store.CaptureSession, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session id is required")
		return nil, false
	}
	session, err := h.manager.Lookup(r.Context(), sessionID)
	if err != nil {
		respondDomainError(w, err)
		return nil, false
	}
	return session, true
}
