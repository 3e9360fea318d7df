// Package store defines the persistent data model and the repository
// interfaces the rest of the system depends on. Concrete implementations
// live in the postgres and mock subpackages.
package store

import (
	"time"
)

// SessionStatus is the lifecycle state of a capture session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Attendance record methods.
const (
	MethodFaceRecognition = "face_recognition"
	MethodManualOverride  = "manual_override"
)

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Student is an enrolled student. Embedding is nil until a reference face
// has been enrolled; a student without one never appears in match results.
type Student struct {
	ID            int64
	Name          string
	StudentNumber string // external id printed on the roll, e.g. STU001
	ClassName     string
	SchoolID      int64
	GuardianName  string
	GuardianPhone string
	HealthNotes   string
	Embedding     []float32
	Active        bool
	CreatedAt     time.Time
}

// MatchResult is one detection matched to a student.
type MatchResult struct {
	FaceIndex     int     `json:"face_index"`
	StudentID     int64   `json:"student_id"`
	StudentName   string  `json:"student_name"`
	StudentNumber string  `json:"student_number"`
	Confidence    float64 `json:"confidence"`
}

// SessionResults is the full result set of a completed capture session,
// persisted as JSON on the session row and immutable afterwards.
type SessionResults struct {
	Matches       []MatchResult `json:"matches"`
	UnmatchedIdx  []int         `json:"unmatched_faces"`
	DetectedFaces int           `json:"total_faces_detected"`
}

// CaptureSession is one photo-upload attempt and its lifecycle.
type CaptureSession struct {
	ID            string // uuid, generated at creation, never reused
	ClassName     string
	SchoolID      int64
	CreatedBy     int64
	Status        SessionStatus
	FailureReason string
	DetectedFaces int
	Results       *SessionResults // nil until completed
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AttendanceRecord is one student's attendance status for one date.
// (StudentID, Date) is the natural key: at most one current record exists.
type AttendanceRecord struct {
	ID         int64
	StudentID  int64
	Date       time.Time // date only, time part zero
	Status     string    // present or absent
	Confidence *float64  // nil for manual records
	Method     string    // face_recognition or manual_override
	RecordedBy int64
	SessionID  string // originating capture session, empty for manual
	Notes      string
	CreatedAt  time.Time
}

// District is the top tier of the scope hierarchy.
type District struct {
	ID        int64
	Name      string
	State     string
	CreatedAt time.Time
}

// School belongs to a district.
type School struct {
	ID          int64
	Name        string
	Address     string
	DistrictID  int64
	PrincipalID *int64
	Active      bool
	CreatedAt   time.Time
}

// User is a system account: teacher, principal, or district officer.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	Role         string // teacher, principal, district
	SchoolID     *int64
	DistrictID   *int64
	Active       bool
	CreatedAt    time.Time
}

// TeacherAssignment binds a teacher to a class and subject within a school.
type TeacherAssignment struct {
	ID        int64
	TeacherID int64
	ClassName string
	Subject   string
	SchoolID  int64
	CreatedAt time.Time
}

// AuthSession is a server-side login session resolved from a bearer token.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SMSRecord is one sent guardian notification batch.
type SMSRecord struct {
	ID             int64
	SchoolID       int64
	Recipients     string // all, class, absent
	TargetClass    string
	Message        string
	RecipientCount int
	SentBy         int64
	SentAt         time.Time
}
