package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/store"
)

// TeacherHandler handles teacher account and class assignment endpoints.
type TeacherHandler struct {
	directory store.DirectoryStore
}

// NewTeacherHandler creates a new teacher handler.
func NewTeacherHandler(directory store.DirectoryStore) *TeacherHandler {
	return &TeacherHandler{directory: directory}
}

// teacherView is the JSON shape of a teacher account. Password hashes
// never leave the server.
type teacherView struct {
	ID          int64            `json:"id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	SchoolID    int64            `json:"school_id,omitempty"`
	Active      bool             `json:"active"`
	CreatedAt   string           `json:"created_at,omitempty"`
	Assignments []assignmentView `json:"assignments,omitempty"`
}

// assignmentView is one class assignment in a teacher listing.
type assignmentView struct {
	ClassName string `json:"class_name"`
	Subject   string `json:"subject,omitempty"`
	SchoolID  int64  `json:"school_id"`
}

func viewTeacher(u *store.User) teacherView {
	v := teacherView{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Active: u.Active,
	}
	if u.SchoolID != nil {
		v.SchoolID = *u.SchoolID
	}
	if !u.CreatedAt.IsZero() {
		v.CreatedAt = u.CreatedAt.Format(time.RFC3339)
	}
	return v
}

func (h *TeacherHandler) authorizeSchool(w http.ResponseWriter, r *http.Request, actor access.Actor, action string, schoolID int64) bool {
	school, err := h.directory.SchoolByID(r.Context(), schoolID)
	if err != nil {
		respondDomainError(w, err)
		return false
	}
	scope := access.Scope{SchoolID: school.ID, SchoolDistrictID: school.DistrictID}
	if err := access.Authorize(actor, action, scope); err != nil {
		respondDomainError(w, err)
		return false
	}
	return true
}

// List returns the teachers of a school.
// GET /teachers?school_id=1
func (h *TeacherHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	schoolID, err := queryInt64(r, "school_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "school_id is required")
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionReadTeachers, schoolID) {
		return
	}

	teachers, err := h.directory.TeachersBySchool(r.Context(), schoolID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	views := make([]teacherView, 0, len(teachers))
	for i := range teachers {
		view := viewTeacher(&teachers[i])
		assignments, err := h.directory.AssignmentsForTeacher(r.Context(), teachers[i].ID)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		for _, a := range assignments {
			view.Assignments = append(view.Assignments, assignmentView{
				ClassName: a.ClassName,
				Subject:   a.Subject,
				SchoolID:  a.SchoolID,
			})
		}
		views = append(views, view)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"teachers": views,
		"count":    len(views),
	})
}

type createTeacherRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SchoolID int64  `json:"school_id"`
}

// Create registers a new teacher account.
func (h *TeacherHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createTeacherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" || req.SchoolID == 0 {
		respondError(w, http.StatusBadRequest, "email, password, name and school_id are required")
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionWriteTeachers, req.SchoolID) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := &store.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         string(access.RoleTeacher),
		SchoolID:     &req.SchoolID,
		Active:       true,
	}
	if err := h.directory.CreateUser(r.Context(), user); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewTeacher(user))
}

type assignRequest struct {
	ClassName string `json:"class_name"`
	Subject   string `json:"subject"`
	SchoolID  int64  `json:"school_id"`
}

// Assign binds a teacher to a class within a school.
// POST /teachers/{teacherID}/assignments
func (h *TeacherHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	teacherID, err := strconv.ParseInt(chi.URLParam(r, "teacherID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid teacher id")
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ClassName == "" || req.SchoolID == 0 {
		respondError(w, http.StatusBadRequest, "class_name and school_id are required")
		return
	}
	if !h.authorizeSchool(w, r, actor, access.ActionWriteTeachers, req.SchoolID) {
		return
	}

	teacher, err := h.directory.UserByID(r.Context(), teacherID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if teacher.Role != string(access.RoleTeacher) {
		respondError(w, http.StatusBadRequest, "assignments can only target teacher accounts")
		return
	}

	assignment := &store.TeacherAssignment{
		TeacherID: teacher.ID,
		ClassName: req.ClassName,
		Subject:   req.Subject,
		SchoolID:  req.SchoolID,
	}
	if err := h.directory.CreateAssignment(r.Context(), assignment); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":         assignment.ID,
		"teacher_id": assignment.TeacherID,
		"class_name": assignment.ClassName,
		"subject":    assignment.Subject,
		"school_id":  assignment.SchoolID,
	})
}
