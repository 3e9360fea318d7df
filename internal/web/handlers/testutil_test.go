package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/embedding"
	"github.com/markrhq/markr/internal/notify"
	"github.com/markrhq/markr/internal/report"
	"github.com/markrhq/markr/internal/store"
	"github.com/markrhq/markr/internal/store/mock"
	"github.com/markrhq/markr/internal/web/middleware"
)

// stubDetector returns canned detections for handler tests.
type stubDetector struct {
	faces []embedding.DetectedFace
	err   error
}

func (d *stubDetector) Detect(ctx context.Context, imageData []byte) ([]embedding.DetectedFace, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.faces, nil
}

// fixture bundles the mock stores and services the handlers depend on,
// seeded with one district, one school, and a small roster.
type fixture struct {
	roster     *mock.MockRosterStore
	captures   *mock.MockCaptureStore
	attendance *mock.MockAttendanceStore
	directory  *mock.MockDirectoryStore
	tokens     *mock.MockTokenStore
	sms        *mock.MockSMSStore
	detector   *stubDetector

	manager   *capture.Manager
	pipeline  *capture.Pipeline
	committer *capture.Committer
	reports   *report.Service
	notify    *notify.Service
}

func newFixture() *fixture {
	f := &fixture{
		roster:     mock.NewMockRosterStore(),
		captures:   mock.NewMockCaptureStore(),
		attendance: mock.NewMockAttendanceStore(),
		directory:  mock.NewMockDirectoryStore(),
		tokens:     mock.NewMockTokenStore(),
		sms:        mock.NewMockSMSStore(),
		detector:   &stubDetector{},
	}

	f.directory.AddDistrict(store.District{ID: 10, Name: "Riverside Unified"})
	f.directory.AddSchool(store.School{ID: 1, Name: "Lincoln Elementary", DistrictID: 10, Active: true})
	f.roster.AddStudent(store.Student{
		ID: 1, Name: "Amara Diallo", StudentNumber: "STU001", ClassName: "5A",
		SchoolID: 1, GuardianPhone: "+15550001", Active: true,
	})
	f.roster.AddStudent(store.Student{
		ID: 2, Name: "Ben Okafor", StudentNumber: "STU002", ClassName: "5A",
		SchoolID: 1, GuardianPhone: "+15550002", Active: true,
	})

	f.manager = capture.NewManager(f.captures, f.directory)
	f.pipeline = capture.NewPipeline(f.manager, f.detector, f.roster, 0.6, time.Second)
	f.committer = capture.NewCommitter(f.captures, f.attendance, f.roster, f.directory)
	f.reports = report.NewService(f.attendance, f.roster, f.directory)
	f.notify = notify.NewService(f.sms, f.roster, f.attendance, f.directory, notify.LogGateway{})

	return f
}

// newStudent builds an active student of school 1 for seeding.
func newStudent(name, number, class string) store.Student {
	return store.Student{
		Name: name, StudentNumber: number, ClassName: class,
		SchoolID: 1, Active: true,
	}
}

// teacherActor is assigned to class 5A at school 1.
func teacherActor() access.Actor {
	return access.Actor{
		UserID: 7, Role: access.RoleTeacher, SchoolID: 1, Active: true,
		Assignments: []access.ClassAssignment{{ClassName: "5A", SchoolID: 1}},
	}
}

func principalActor() access.Actor {
	return access.Actor{UserID: 8, Role: access.RolePrincipal, SchoolID: 1, Active: true}
}

func districtActor() access.Actor {
	return access.Actor{UserID: 9, Role: access.RoleDistrict, DistrictID: 10, Active: true}
}

// requestWithActor creates a request with an authenticated actor in context.
func requestWithActor(t *testing.T, method, path string, body any, actor access.Actor) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.SetActorInContext(req.Context(), actor))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// multipartPhotoRequest builds a multipart request carrying a photo field.
func multipartPhotoRequest(t *testing.T, path string, actor access.Actor) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("photo", "class.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	part.Write([]byte("jpeg-bytes"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req.WithContext(middleware.SetActorInContext(req.Context(), actor))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
