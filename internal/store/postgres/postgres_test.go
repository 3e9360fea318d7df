//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/markrhq/markr/internal/config"
	"github.com/markrhq/markr/internal/store"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

// seedSchool creates a district, school, teacher, and class roster and
// returns the repositories plus the seeded ids.
type seededSchool struct {
	stores    *Stores
	schoolID  int64
	teacherID int64
	students  []store.Student
}

func seedSchool(t *testing.T, pool *Pool) *seededSchool {
	t.Helper()
	ctx := context.Background()
	stores := NewStores(pool)

	district := &store.District{Name: "Riverside Unified", State: "CA"}
	if err := stores.Directory.CreateDistrict(ctx, district); err != nil {
		t.Fatalf("Failed to create district: %v", err)
	}

	school := &store.School{Name: "Lincoln Elementary", DistrictID: district.ID, Active: true}
	if err := stores.Directory.CreateSchool(ctx, school); err != nil {
		t.Fatalf("Failed to create school: %v", err)
	}

	teacher := &store.User{
		Email: "teacher@lincoln.test", PasswordHash: "x", Name: "Dana Reyes",
		Role: "teacher", SchoolID: &school.ID, Active: true,
	}
	if err := stores.Directory.CreateUser(ctx, teacher); err != nil {
		t.Fatalf("Failed to create teacher: %v", err)
	}

	var students []store.Student
	for i, name := range []string{"Amara Diallo", "Ben Okafor", "Chen Wei"} {
		embedding := make([]float32, 128)
		embedding[0] = float32(i)
		s := store.Student{
			Name: name, StudentNumber: fmt.Sprintf("STU%03d", i+1),
			ClassName: "5A", SchoolID: school.ID, Embedding: embedding, Active: true,
		}
		if err := stores.Roster.CreateStudent(ctx, &s); err != nil {
			t.Fatalf("Failed to create student: %v", err)
		}
		students = append(students, s)
	}

	return &seededSchool{stores: stores, schoolID: school.ID, teacherID: teacher.ID, students: students}
}

func TestRosterRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seed := seedSchool(t, pool)
	repo := seed.stores.Roster

	t.Run("ActiveStudents", func(t *testing.T) {
		students, err := repo.ActiveStudents(ctx, "5A", seed.schoolID)
		if err != nil {
			t.Fatalf("ActiveStudents failed: %v", err)
		}
		if len(students) != 3 {
			t.Fatalf("Expected 3 students, got %d", len(students))
		}
		if len(students[0].Embedding) != 128 {
			t.Errorf("Expected 128-dim embedding, got %d", len(students[0].Embedding))
		}
	})

	t.Run("UpdateEmbedding", func(t *testing.T) {
		embedding := make([]float32, 128)
		embedding[0] = 9.5
		if err := repo.UpdateStudentEmbedding(ctx, seed.students[0].ID, embedding); err != nil {
			t.Fatalf("UpdateStudentEmbedding failed: %v", err)
		}
		got, err := repo.StudentByID(ctx, seed.students[0].ID)
		if err != nil {
			t.Fatalf("StudentByID failed: %v", err)
		}
		if got.Embedding[0] != 9.5 {
			t.Errorf("Expected updated embedding, got %v", got.Embedding[0])
		}
	})

	t.Run("NullEmbedding", func(t *testing.T) {
		s := store.Student{
			Name: "No Face Yet", StudentNumber: "STU999",
			ClassName: "5A", SchoolID: seed.schoolID, Active: true,
		}
		if err := repo.CreateStudent(ctx, &s); err != nil {
			t.Fatalf("CreateStudent failed: %v", err)
		}
		got, err := repo.StudentByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("StudentByID failed: %v", err)
		}
		if got.Embedding != nil {
			t.Errorf("Expected nil embedding, got %v", got.Embedding)
		}
	})

	t.Run("SearchNormalized", func(t *testing.T) {
		s := store.Student{
			Name: "José Álvarez-Ruiz", StudentNumber: "STU500",
			ClassName: "5A", SchoolID: seed.schoolID, Active: true,
		}
		if err := repo.CreateStudent(ctx, &s); err != nil {
			t.Fatalf("CreateStudent failed: %v", err)
		}
		found, err := repo.SearchStudents(ctx, seed.schoolID, "jose alvarez")
		if err != nil {
			t.Fatalf("SearchStudents failed: %v", err)
		}
		if len(found) != 1 || found[0].ID != s.ID {
			t.Errorf("Expected to find José by normalized query, got %v", found)
		}
	})

	t.Run("Deactivate", func(t *testing.T) {
		if err := repo.DeactivateStudent(ctx, seed.students[2].ID); err != nil {
			t.Fatalf("DeactivateStudent failed: %v", err)
		}
		students, err := repo.ActiveStudents(ctx, "5A", seed.schoolID)
		if err != nil {
			t.Fatalf("ActiveStudents failed: %v", err)
		}
		for _, s := range students {
			if s.ID == seed.students[2].ID {
				t.Error("Deactivated student still in roster")
			}
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.StudentByID(ctx, 999999); err != store.ErrStudentNotFound {
			t.Errorf("Expected ErrStudentNotFound, got %v", err)
		}
	})
}

func TestCaptureRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seed := seedSchool(t, pool)
	repo := seed.stores.Captures

	newSession := func(t *testing.T) *store.CaptureSession {
		t.Helper()
		s := &store.CaptureSession{
			ID: uuid.NewString(), ClassName: "5A", SchoolID: seed.schoolID,
			CreatedBy: seed.teacherID, Status: store.StatusPending,
		}
		if err := repo.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		return s
	}

	t.Run("Lifecycle", func(t *testing.T) {
		s := newSession(t)

		applied, err := repo.Transition(ctx, s.ID, store.StatusPending, store.StatusProcessing, "")
		if err != nil || !applied {
			t.Fatalf("Transition to processing: applied=%v err=%v", applied, err)
		}

		results := &store.SessionResults{
			Matches: []store.MatchResult{
				{FaceIndex: 0, StudentID: seed.students[0].ID, StudentName: seed.students[0].Name, Confidence: 0.9},
			},
			UnmatchedIdx:  []int{1},
			DetectedFaces: 2,
		}
		applied, err = repo.StoreResults(ctx, s.ID, results)
		if err != nil || !applied {
			t.Fatalf("StoreResults: applied=%v err=%v", applied, err)
		}

		got, err := repo.SessionByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("SessionByID failed: %v", err)
		}
		if got.Status != store.StatusCompleted {
			t.Errorf("Expected completed, got %s", got.Status)
		}
		if got.DetectedFaces != 2 {
			t.Errorf("Expected 2 detected faces, got %d", got.DetectedFaces)
		}
		if got.Results == nil || len(got.Results.Matches) != 1 {
			t.Fatalf("Expected persisted results, got %+v", got.Results)
		}
		if got.Results.Matches[0].StudentID != seed.students[0].ID {
			t.Errorf("Unexpected match %+v", got.Results.Matches[0])
		}
	})

	t.Run("ConditionalTransition", func(t *testing.T) {
		s := newSession(t)
		applied, err := repo.Transition(ctx, s.ID, store.StatusProcessing, store.StatusCompleted, "")
		if err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
		if applied {
			t.Error("Transition from wrong state must not apply")
		}
		got, _ := repo.SessionByID(ctx, s.ID)
		if got.Status != store.StatusPending {
			t.Errorf("Session changed state unexpectedly: %s", got.Status)
		}
	})

	t.Run("FailureReason", func(t *testing.T) {
		s := newSession(t)
		applied, err := repo.Transition(ctx, s.ID, store.StatusPending, store.StatusFailed, "timeout")
		if err != nil || !applied {
			t.Fatalf("Transition to failed: applied=%v err=%v", applied, err)
		}
		got, _ := repo.SessionByID(ctx, s.ID)
		if got.FailureReason != "timeout" {
			t.Errorf("Expected reason timeout, got %q", got.FailureReason)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.SessionByID(ctx, uuid.NewString()); err != store.ErrSessionNotFound {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seed := seedSchool(t, pool)
	repo := seed.stores.Attendance
	today := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	session := &store.CaptureSession{
		ID: uuid.NewString(), ClassName: "5A", SchoolID: seed.schoolID,
		CreatedBy: seed.teacherID, Status: store.StatusPending,
	}
	if err := seed.stores.Captures.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	confidence := 0.93
	record := func(studentID int64, status string) store.AttendanceRecord {
		return store.AttendanceRecord{
			StudentID: studentID, Status: status, Confidence: &confidence,
			Method: store.MethodFaceRecognition, RecordedBy: seed.teacherID,
			SessionID: session.ID,
		}
	}

	t.Run("CommitAndReplace", func(t *testing.T) {
		err := repo.CommitConfirmations(ctx, today, session.ID, []store.AttendanceRecord{
			record(seed.students[0].ID, store.StatusPresent),
			record(seed.students[1].ID, store.StatusPresent),
		})
		if err != nil {
			t.Fatalf("CommitConfirmations failed: %v", err)
		}

		// Corrected list drops student 1 and flips student 0 to absent.
		err = repo.CommitConfirmations(ctx, today, session.ID, []store.AttendanceRecord{
			record(seed.students[0].ID, store.StatusAbsent),
		})
		if err != nil {
			t.Fatalf("Second CommitConfirmations failed: %v", err)
		}

		rec, err := repo.RecordByStudentDate(ctx, seed.students[0].ID, today)
		if err != nil {
			t.Fatalf("RecordByStudentDate failed: %v", err)
		}
		if rec == nil || rec.Status != store.StatusAbsent {
			t.Errorf("Expected absent after correction, got %+v", rec)
		}
		rec, err = repo.RecordByStudentDate(ctx, seed.students[1].ID, today)
		if err != nil {
			t.Fatalf("RecordByStudentDate failed: %v", err)
		}
		if rec != nil {
			t.Errorf("Expected record removed by correction, got %+v", rec)
		}
	})

	t.Run("OverrideWinsOverConfirm", func(t *testing.T) {
		date := today.AddDate(0, 0, 1)
		err := repo.UpsertOverride(ctx, store.AttendanceRecord{
			StudentID: seed.students[0].ID, Date: date, Status: store.StatusAbsent,
			RecordedBy: seed.teacherID, Notes: "Override: Sick note.",
		})
		if err != nil {
			t.Fatalf("UpsertOverride failed: %v", err)
		}

		err = repo.CommitConfirmations(ctx, date, session.ID, []store.AttendanceRecord{
			{StudentID: seed.students[0].ID, Status: store.StatusPresent,
				Method: store.MethodFaceRecognition, RecordedBy: seed.teacherID, SessionID: session.ID},
		})
		if err != nil {
			t.Fatalf("CommitConfirmations failed: %v", err)
		}

		rec, err := repo.RecordByStudentDate(ctx, seed.students[0].ID, date)
		if err != nil {
			t.Fatalf("RecordByStudentDate failed: %v", err)
		}
		if rec == nil || rec.Method != store.MethodManualOverride || rec.Status != store.StatusAbsent {
			t.Errorf("Override must survive a later confirm, got %+v", rec)
		}
	})

	t.Run("OverrideReplacesInPlace", func(t *testing.T) {
		date := today.AddDate(0, 0, 2)
		err := repo.CommitConfirmations(ctx, date, session.ID, []store.AttendanceRecord{
			record(seed.students[1].ID, store.StatusPresent),
		})
		if err != nil {
			t.Fatalf("CommitConfirmations failed: %v", err)
		}

		err = repo.UpsertOverride(ctx, store.AttendanceRecord{
			StudentID: seed.students[1].ID, Date: date, Status: store.StatusAbsent,
			RecordedBy: seed.teacherID, Notes: "Override: Left early.",
		})
		if err != nil {
			t.Fatalf("UpsertOverride failed: %v", err)
		}

		rec, err := repo.RecordByStudentDate(ctx, seed.students[1].ID, date)
		if err != nil {
			t.Fatalf("RecordByStudentDate failed: %v", err)
		}
		if rec.Method != store.MethodManualOverride {
			t.Errorf("Expected manual_override, got %s", rec.Method)
		}
		if rec.Confidence != nil {
			t.Error("Override must clear confidence")
		}
		if rec.SessionID != session.ID {
			t.Errorf("Override must keep originating session id, got %q", rec.SessionID)
		}
	})

	t.Run("AbsentStudentIDs", func(t *testing.T) {
		ids, err := repo.AbsentStudentIDs(ctx, seed.schoolID, today)
		if err != nil {
			t.Fatalf("AbsentStudentIDs failed: %v", err)
		}
		if len(ids) != 1 || ids[0] != seed.students[0].ID {
			t.Errorf("Expected student %d absent, got %v", seed.students[0].ID, ids)
		}
	})

	t.Run("RecordsByClassRange", func(t *testing.T) {
		records, err := repo.RecordsByClassRange(ctx, seed.schoolID, "5A", today, today.AddDate(0, 0, 2))
		if err != nil {
			t.Fatalf("RecordsByClassRange failed: %v", err)
		}
		if len(records) != 3 {
			t.Errorf("Expected 3 records in range, got %d", len(records))
		}
	})
}

func TestTokenRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	seed := seedSchool(t, pool)
	repo := seed.stores.Tokens

	t.Run("SaveAndGet", func(t *testing.T) {
		s := store.AuthSession{
			ID: "tok-1", UserID: seed.teacherID,
			CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
		}
		if err := repo.SaveAuthSession(ctx, s); err != nil {
			t.Fatalf("SaveAuthSession failed: %v", err)
		}
		got, err := repo.AuthSessionByID(ctx, "tok-1")
		if err != nil {
			t.Fatalf("AuthSessionByID failed: %v", err)
		}
		if got == nil || got.UserID != seed.teacherID {
			t.Errorf("Expected session for teacher, got %+v", got)
		}
	})

	t.Run("ExpiredIsNil", func(t *testing.T) {
		s := store.AuthSession{
			ID: "tok-expired", UserID: seed.teacherID,
			CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour),
		}
		if err := repo.SaveAuthSession(ctx, s); err != nil {
			t.Fatalf("SaveAuthSession failed: %v", err)
		}
		got, err := repo.AuthSessionByID(ctx, "tok-expired")
		if err != nil {
			t.Fatalf("AuthSessionByID failed: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil for expired session, got %+v", got)
		}

		n, err := repo.DeleteExpiredAuthSessions(ctx)
		if err != nil {
			t.Fatalf("DeleteExpiredAuthSessions failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 expired session deleted, got %d", n)
		}
	})
}
