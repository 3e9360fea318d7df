package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/store"
)

// StudentHandler handles student roster endpoints, including reference
// photo enrollment.
type StudentHandler struct {
	roster    store.RosterStore
	directory store.DirectoryStore
	detector  capture.Detector
}

// NewStudentHandler creates a new student handler.
func NewStudentHandler(roster store.RosterStore, directory store.DirectoryStore, detector capture.Detector) *StudentHandler {
	return &StudentHandler{
		roster:    roster,
		directory: directory,
		detector:  detector,
	}
}

// studentView is the JSON shape of a student. The raw embedding never
// leaves the server; clients only learn whether one is enrolled.
type studentView struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	StudentNumber string `json:"student_number"`
	ClassName     string `json:"class_name"`
	SchoolID      int64  `json:"school_id"`
	GuardianName  string `json:"guardian_name,omitempty"`
	GuardianPhone string `json:"guardian_phone,omitempty"`
	HealthNotes   string `json:"health_notes,omitempty"`
	Enrolled      bool   `json:"face_enrolled"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func viewStudent(s *store.Student) studentView {
	v := studentView{
		ID:            s.ID,
		Name:          s.Name,
		StudentNumber: s.StudentNumber,
		ClassName:     s.ClassName,
		SchoolID:      s.SchoolID,
		GuardianName:  s.GuardianName,
		GuardianPhone: s.GuardianPhone,
		HealthNotes:   s.HealthNotes,
		Enrolled:      len(s.Embedding) > 0,
		Active:        s.Active,
	}
	if !s.CreatedAt.IsZero() {
		v.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	}
	return v
}

// authorizeSchool resolves the school and checks the actor against the
// given action in the school's scope.
func (h *StudentHandler) authorizeSchool(w http.ResponseWriter, r *http.Request, actor access.Actor, action string, schoolID int64, className string) bool {
	school, err := h.directory.SchoolByID(r.Context(), schoolID)
	if err != nil {
		respondDomainError(w, err)
		return false
	}
	scope := access.Scope{
		SchoolID:         school.ID,
		SchoolDistrictID: school.DistrictID,
		ClassName:        className,
	}
	if err := access.Authorize(actor, action, scope); err != nil {
		respondDomainError(w, err)
		return false
	}
	return true
}

// List returns a school's active students, optionally filtered by a
// diacritic-insensitive name search.
// GET /students?school_id=1&q=jose
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	schoolID, err := queryInt64(r, "school_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "school_id is required")
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionReadStudents, schoolID, "") {
		return
	}

	students, err := h.roster.SearchStudents(r.Context(), schoolID, r.URL.Query().Get("q"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	class := r.URL.Query().Get("class")
	views := make([]studentView, 0, len(students))
	for i := range students {
		if class != "" && students[i].ClassName != class {
			continue
		}
		views = append(views, viewStudent(&students[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"students": views,
		"count":    len(views),
	})
}

// Get returns a single student.
func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	student, ok := h.loadStudent(w, r)
	if !ok {
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionReadStudents, student.SchoolID, student.ClassName) {
		return
	}
	respondJSON(w, http.StatusOK, viewStudent(student))
}

type createStudentRequest struct {
	Name          string `json:"name"`
	StudentNumber string `json:"student_number"`
	ClassName     string `json:"class_name"`
	SchoolID      int64  `json:"school_id"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	HealthNotes   string `json:"health_notes"`
}

// Create registers a new student without a reference face. Enrollment
// happens separately via the photo endpoint.
func (h *StudentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" || req.StudentNumber == "" || req.ClassName == "" || req.SchoolID == 0 {
		respondError(w, http.StatusBadRequest, "name, student_number, class_name and school_id are required")
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionWriteStudents, req.SchoolID, req.ClassName) {
		return
	}

	student := &store.Student{
		Name:          req.Name,
		StudentNumber: req.StudentNumber,
		ClassName:     req.ClassName,
		SchoolID:      req.SchoolID,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		HealthNotes:   req.HealthNotes,
		Active:        true,
	}
	if err := h.roster.CreateStudent(r.Context(), student); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewStudent(student))
}

// Enroll attaches a reference face to a student from an uploaded photo.
// The photo must contain exactly one detectable face.
func (h *StudentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	student, ok := h.loadStudent(w, r)
	if !ok {
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionWriteStudents, student.SchoolID, student.ClassName) {
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

	faces, err := h.detector.Detect(r.Context(), imageData)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if len(faces) != 1 {
		respondError(w, http.StatusBadRequest, "enrollment photo must contain exactly one face, found "+strconv.Itoa(len(faces)))
		return
	}

	if err := h.roster.UpdateStudentEmbedding(r.Context(), student.ID, faces[0].Embedding); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Deactivate marks a student inactive. Attendance history is kept.
func (h *StudentHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	student, ok := h.loadStudent(w, r)
	if !ok {
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionWriteStudents, student.SchoolID, student.ClassName) {
		return
	}

	if err := h.roster.DeactivateStudent(r.Context(), student.ID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *StudentHandler) loadStudent(w http.ResponseWriter, r *http.Request) (*store.Student, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return nil, false
	}
	student, err := h.roster.StudentByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return nil, false
	}
	return student, true
}
