package store

import (
	"context"
	"time"
)

// RosterStore provides access to enrolled students.
type RosterStore interface {
	// ActiveStudents returns the active students of a class within a school.
	ActiveStudents(ctx context.Context, className string, schoolID int64) ([]Student, error)
	// StudentByID returns ErrStudentNotFound if the id does not resolve.
	StudentByID(ctx context.Context, id int64) (*Student, error)
	// StudentByNumber looks a student up by external student number.
	StudentByNumber(ctx context.Context, number string) (*Student, error)
	// CreateStudent inserts a student and fills in the generated id.
	CreateStudent(ctx context.Context, s *Student) error
	// UpdateStudentEmbedding replaces a student's reference embedding.
	UpdateStudentEmbedding(ctx context.Context, id int64, embedding []float32) error
	// DeactivateStudent marks a student inactive; records are kept.
	DeactivateStudent(ctx context.Context, id int64) error
	// SearchStudents returns active students of a school whose normalized
	// name contains the normalized query.
	SearchStudents(ctx context.Context, schoolID int64, query string) ([]Student, error)
}

// CaptureStore persists capture sessions. Status transitions are
// conditional: Transition and StoreResults only apply when the session is
// still in the expected state, so racing callers cannot merge results.
type CaptureStore interface {
	CreateSession(ctx context.Context, s *CaptureSession) error
	// SessionByID returns ErrSessionNotFound if the id does not resolve.
	SessionByID(ctx context.Context, id string) (*CaptureSession, error)
	// Transition moves the session from one status to another, recording
	// the failure reason when to == failed. Returns false without error
	// when the session exists but is not in the from status.
	Transition(ctx context.Context, id string, from, to SessionStatus, reason string) (bool, error)
	// StoreResults completes a processing session with its result set.
	// Returns false when the session is not in processing.
	StoreResults(ctx context.Context, id string, results *SessionResults) (bool, error)
}

// AttendanceStore persists attendance records.
type AttendanceStore interface {
	// CommitConfirmations atomically deletes automatically-sourced records
	// for (date, sessionID) and inserts the given records. A record whose
	// (student, date) slot is held by a manual override is left alone.
	CommitConfirmations(ctx context.Context, date time.Time, sessionID string, records []AttendanceRecord) error
	// UpsertOverride writes a manual override record, updating the
	// (student, date) row in place or inserting one.
	UpsertOverride(ctx context.Context, rec AttendanceRecord) error
	// RecordByStudentDate returns nil when no record exists.
	RecordByStudentDate(ctx context.Context, studentID int64, date time.Time) (*AttendanceRecord, error)
	// RecordsByDate returns all records for one date across the given school.
	RecordsByDate(ctx context.Context, schoolID int64, date time.Time) ([]AttendanceRecord, error)
	// RecordsByClassRange returns records for a class between two dates inclusive.
	RecordsByClassRange(ctx context.Context, schoolID int64, className string, from, to time.Time) ([]AttendanceRecord, error)
	// AbsentStudentIDs returns students with an explicit absent record on
	// the date. Students never captured that day are not included.
	AbsentStudentIDs(ctx context.Context, schoolID int64, date time.Time) ([]int64, error)
}

// DirectoryStore provides schools, districts, users, and assignments.
type DirectoryStore interface {
	SchoolByID(ctx context.Context, id int64) (*School, error)
	SchoolsByDistrict(ctx context.Context, districtID int64) ([]School, error)
	CreateDistrict(ctx context.Context, d *District) error
	CreateSchool(ctx context.Context, s *School) error
	DistrictByID(ctx context.Context, id int64) (*District, error)

	UserByID(ctx context.Context, id int64) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	TeachersBySchool(ctx context.Context, schoolID int64) ([]User, error)

	AssignmentsForTeacher(ctx context.Context, teacherID int64) ([]TeacherAssignment, error)
	CreateAssignment(ctx context.Context, a *TeacherAssignment) error
}

// TokenStore persists login sessions keyed by opaque token id.
type TokenStore interface {
	SaveAuthSession(ctx context.Context, s AuthSession) error
	// AuthSessionByID returns nil when the session is missing or expired.
	AuthSessionByID(ctx context.Context, id string) (*AuthSession, error)
	DeleteAuthSession(ctx context.Context, id string) error
	DeleteExpiredAuthSessions(ctx context.Context) (int64, error)
}

// SMSStore persists notification history.
type SMSStore interface {
	SaveSMS(ctx context.Context, rec *SMSRecord) error
	SMSHistory(ctx context.Context, schoolID int64, limit int) ([]SMSRecord, error)
}
