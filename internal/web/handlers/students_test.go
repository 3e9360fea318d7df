package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/markrhq/markr/internal/embedding"
)

func studentHandlerFixture(t *testing.T) (*fixture, *StudentHandler) {
	t.Helper()
	f := newFixture()
	return f, NewStudentHandler(f.roster, f.directory, f.detector)
}

func TestListStudents(t *testing.T) {
	_, handler := studentHandlerFixture(t)

	req := requestWithActor(t, http.MethodGet, "/api/v1/students?school_id=1", nil, teacherActor())
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Students []studentView `json:"students"`
		Count    int           `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 2 {
		t.Errorf("expected 2 students, got %d", resp.Count)
	}
	for _, s := range resp.Students {
		if s.Enrolled {
			t.Errorf("student %d should not be enrolled yet", s.ID)
		}
	}
}

func TestSearchStudentsNormalized(t *testing.T) {
	f, handler := studentHandlerFixture(t)
	f.roster.AddStudent(newStudent("José Álvarez-Ruiz", "STU003", "5A"))

	req := requestWithActor(t, http.MethodGet, "/api/v1/students?school_id=1&q=jose+alvarez", nil, teacherActor())
	recorder := httptest.NewRecorder()
	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Count int `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 1 {
		t.Errorf("expected 1 match, got %d", resp.Count)
	}
}

func TestCreateStudent(t *testing.T) {
	f, handler := studentHandlerFixture(t)

	body := map[string]any{
		"name":           "Chloe Nguyen",
		"student_number": "STU010",
		"class_name":     "5A",
		"school_id":      1,
		"guardian_phone": "+15550010",
	}
	req := requestWithActor(t, http.MethodPost, "/api/v1/students", body, principalActor())
	recorder := httptest.NewRecorder()
	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)

	var resp studentView
	parseJSONResponse(t, recorder, &resp)
	if resp.ID == 0 {
		t.Error("expected an assigned student id")
	}
	if resp.Enrolled {
		t.Error("new students must not have a reference face")
	}

	students, err := f.roster.SearchStudents(req.Context(), 1, "chloe")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(students) != 1 {
		t.Errorf("expected the student to be stored, found %d", len(students))
	}
}

func TestCreateStudentDeniedForTeacher(t *testing.T) {
	_, handler := studentHandlerFixture(t)

	body := map[string]any{
		"name": "X", "student_number": "STU011", "class_name": "5A", "school_id": 1,
	}
	req := requestWithActor(t, http.MethodPost, "/api/v1/students", body, teacherActor())
	recorder := httptest.NewRecorder()
	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusForbidden)
}

func TestEnrollStudent(t *testing.T) {
	f, handler := studentHandlerFixture(t)
	f.detector.faces = []embedding.DetectedFace{
		{Index: 0, Embedding: []float32{0.1, 0.2, 0.3, 0.4}, Score: 0.99},
	}

	req := multipartPhotoRequest(t, "/api/v1/students/1/photo", principalActor())
	req = requestWithChiParams(req, map[string]string{"studentID": "1"})
	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	student, err := f.roster.StudentByID(req.Context(), 1)
	if err != nil {
		t.Fatalf("student lookup failed: %v", err)
	}
	if len(student.Embedding) != 4 {
		t.Errorf("expected stored embedding, got %v", student.Embedding)
	}
}

func TestEnrollRejectsMultipleFaces(t *testing.T) {
	f, handler := studentHandlerFixture(t)
	f.detector.faces = []embedding.DetectedFace{
		{Index: 0, Embedding: []float32{0.1, 0, 0, 0}},
		{Index: 1, Embedding: []float32{0.2, 0, 0, 0}},
	}

	req := multipartPhotoRequest(t, "/api/v1/students/1/photo", principalActor())
	req = requestWithChiParams(req, map[string]string{"studentID": "1"})
	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)

	student, err := f.roster.StudentByID(req.Context(), 1)
	if err != nil {
		t.Fatalf("student lookup failed: %v", err)
	}
	if len(student.Embedding) != 0 {
		t.Error("embedding must not be stored for a multi-face photo")
	}
}

func TestEnrollRejectsZeroFaces(t *testing.T) {
	f, handler := studentHandlerFixture(t)
	f.detector.faces = nil

	req := multipartPhotoRequest(t, "/api/v1/students/1/photo", principalActor())
	req = requestWithChiParams(req, map[string]string{"studentID": "1"})
	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestDeactivateStudent(t *testing.T) {
	f, handler := studentHandlerFixture(t)

	req := requestWithActor(t, http.MethodDelete, "/api/v1/students/1", nil, principalActor())
	req = requestWithChiParams(req, map[string]string{"studentID": "1"})
	recorder := httptest.NewRecorder()
	handler.Deactivate(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	students, err := f.roster.SearchStudents(req.Context(), 1, "")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(students) != 1 {
		t.Errorf("expected 1 remaining active student, got %d", len(students))
	}
}

func TestGetStudentNotFound(t *testing.T) {
	_, handler := studentHandlerFixture(t)

	req := requestWithActor(t, http.MethodGet, "/api/v1/students/99", nil, principalActor())
	req = requestWithChiParams(req, map[string]string{"studentID": "99"})
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}
