// Package mock provides in-memory implementations of the store interfaces
// for testing.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/markrhq/markr/internal/store"
)

// MockRosterStore is a mock implementation of store.RosterStore.
type MockRosterStore struct {
	mu       sync.RWMutex
	students map[int64]*store.Student
	nextID   int64

	// Error injection
	ActiveStudentsError  error
	StudentByIDError     error
	StudentByNumberError error
	CreateStudentError   error
	UpdateEmbeddingError error
	DeactivateError      error
	SearchError          error
}

// NewMockRosterStore creates a new mock roster store.
func NewMockRosterStore() *MockRosterStore {
	return &MockRosterStore{students: make(map[int64]*store.Student)}
}

// AddStudent adds a student to the mock store, assigning an id if unset.
func (m *MockRosterStore) AddStudent(s store.Student) store.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		m.nextID++
		s.ID = m.nextID
	} else if s.ID > m.nextID {
		m.nextID = s.ID
	}
	m.students[s.ID] = &s
	return s
}

// ActiveStudents returns active students of a class within a school.
func (m *MockRosterStore) ActiveStudents(ctx context.Context, className string, schoolID int64) ([]store.Student, error) {
	if m.ActiveStudentsError != nil {
		return nil, m.ActiveStudentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.Student
	for _, s := range m.students {
		if s.Active && s.ClassName == className && s.SchoolID == schoolID {
			result = append(result, *s)
		}
	}
	return result, nil
}

// StudentByID retrieves a student by id.
func (m *MockRosterStore) StudentByID(ctx context.Context, id int64) (*store.Student, error) {
	if m.StudentByIDError != nil {
		return nil, m.StudentByIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, store.ErrStudentNotFound
	}
	cp := *s
	return &cp, nil
}

// StudentByNumber retrieves a student by external student number.
func (m *MockRosterStore) StudentByNumber(ctx context.Context, number string) (*store.Student, error) {
	if m.StudentByNumberError != nil {
		return nil, m.StudentByNumberError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.students {
		if s.StudentNumber == number {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrStudentNotFound
}

// CreateStudent inserts a student and fills in the generated id.
func (m *MockRosterStore) CreateStudent(ctx context.Context, s *store.Student) error {
	if m.CreateStudentError != nil {
		return m.CreateStudentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.CreatedAt = time.Now()
	cp := *s
	m.students[s.ID] = &cp
	return nil
}

// UpdateStudentEmbedding replaces a student's reference embedding.
func (m *MockRosterStore) UpdateStudentEmbedding(ctx context.Context, id int64, embedding []float32) error {
	if m.UpdateEmbeddingError != nil {
		return m.UpdateEmbeddingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return store.ErrStudentNotFound
	}
	s.Embedding = embedding
	return nil
}

// DeactivateStudent marks a student inactive.
func (m *MockRosterStore) DeactivateStudent(ctx context.Context, id int64) error {
	if m.DeactivateError != nil {
		return m.DeactivateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return store.ErrStudentNotFound
	}
	s.Active = false
	return nil
}

// SearchStudents returns active students whose normalized name contains
// the normalized query.
func (m *MockRosterStore) SearchStudents(ctx context.Context, schoolID int64, query string) ([]store.Student, error) {
	if m.SearchError != nil {
		return nil, m.SearchError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := store.NormalizeName(query)
	var result []store.Student
	for _, s := range m.students {
		if !s.Active || s.SchoolID != schoolID {
			continue
		}
		if strings.Contains(store.NormalizeName(s.Name), q) {
			result = append(result, *s)
		}
	}
	return result, nil
}

// MockCaptureStore is a mock implementation of store.CaptureStore.
type MockCaptureStore struct {
	mu       sync.RWMutex
	sessions map[string]*store.CaptureSession

	// Track calls
	TransitionCalls []TransitionCall

	// Error injection
	CreateSessionError error
	SessionByIDError   error
	TransitionError    error
	StoreResultsError  error
}

// TransitionCall tracks a Transition call.
type TransitionCall struct {
	ID     string
	From   store.SessionStatus
	To     store.SessionStatus
	Reason string
}

// NewMockCaptureStore creates a new mock capture store.
func NewMockCaptureStore() *MockCaptureStore {
	return &MockCaptureStore{sessions: make(map[string]*store.CaptureSession)}
}

// AddSession adds a session to the mock store.
func (m *MockCaptureStore) AddSession(s store.CaptureSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = &s
}

// CreateSession stores a new session.
func (m *MockCaptureStore) CreateSession(ctx context.Context, s *store.CaptureSession) error {
	if m.CreateSessionError != nil {
		return m.CreateSessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// SessionByID retrieves a session by id.
func (m *MockCaptureStore) SessionByID(ctx context.Context, id string) (*store.CaptureSession, error) {
	if m.SessionByIDError != nil {
		return nil, m.SessionByIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

// Transition conditionally moves a session between statuses.
func (m *MockCaptureStore) Transition(ctx context.Context, id string, from, to store.SessionStatus, reason string) (bool, error) {
	if m.TransitionError != nil {
		return false, m.TransitionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransitionCalls = append(m.TransitionCalls, TransitionCall{ID: id, From: from, To: to, Reason: reason})
	s, ok := m.sessions[id]
	if !ok {
		return false, store.ErrSessionNotFound
	}
	if s.Status != from {
		return false, nil
	}
	s.Status = to
	s.FailureReason = reason
	s.UpdatedAt = time.Now()
	return true, nil
}

// StoreResults completes a processing session with its result set.
func (m *MockCaptureStore) StoreResults(ctx context.Context, id string, results *store.SessionResults) (bool, error) {
	if m.StoreResultsError != nil {
		return false, m.StoreResultsError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, store.ErrSessionNotFound
	}
	if s.Status != store.StatusProcessing {
		return false, nil
	}
	s.Status = store.StatusCompleted
	s.Results = results
	s.DetectedFaces = results.DetectedFaces
	s.UpdatedAt = time.Now()
	return true, nil
}

// MockAttendanceStore is a mock implementation of store.AttendanceStore.
type MockAttendanceStore struct {
	mu      sync.RWMutex
	records map[string]*store.AttendanceRecord // keyed by studentID + date
	nextID  int64

	// Track calls
	CommitCalls int

	// Error injection
	CommitError   error
	OverrideError error
	ReadError     error
}

// NewMockAttendanceStore creates a new mock attendance store.
func NewMockAttendanceStore() *MockAttendanceStore {
	return &MockAttendanceStore{records: make(map[string]*store.AttendanceRecord)}
}

func recordKey(studentID int64, date time.Time) string {
	return fmt.Sprintf("%s/%d", date.UTC().Format("2006-01-02"), studentID)
}

// AddRecord seeds an attendance record.
func (m *MockAttendanceStore) AddRecord(rec store.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.records[recordKey(rec.StudentID, rec.Date)] = &rec
}

// CommitConfirmations deletes automatic records for (date, session) and
// inserts the given records, skipping slots held by manual overrides.
func (m *MockAttendanceStore) CommitConfirmations(ctx context.Context, date time.Time, sessionID string, records []store.AttendanceRecord) error {
	if m.CommitError != nil {
		return m.CommitError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitCalls++
	for key, rec := range m.records {
		if rec.SessionID == sessionID && sameDate(rec.Date, date) && rec.Method == store.MethodFaceRecognition {
			delete(m.records, key)
		}
	}
	for _, rec := range records {
		key := recordKey(rec.StudentID, date)
		if existing, ok := m.records[key]; ok && existing.Method == store.MethodManualOverride {
			continue
		}
		m.nextID++
		rec.ID = m.nextID
		rec.Date = date
		rec.CreatedAt = time.Now()
		cp := rec
		m.records[key] = &cp
	}
	return nil
}

// UpsertOverride writes a manual override record in place.
func (m *MockAttendanceStore) UpsertOverride(ctx context.Context, rec store.AttendanceRecord) error {
	if m.OverrideError != nil {
		return m.OverrideError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(rec.StudentID, rec.Date)
	if existing, ok := m.records[key]; ok {
		existing.Status = rec.Status
		existing.Confidence = nil
		existing.Method = store.MethodManualOverride
		existing.RecordedBy = rec.RecordedBy
		existing.Notes = rec.Notes
		return nil
	}
	m.nextID++
	rec.ID = m.nextID
	rec.Method = store.MethodManualOverride
	rec.CreatedAt = time.Now()
	m.records[key] = &rec
	return nil
}

// RecordByStudentDate returns nil when no record exists.
func (m *MockAttendanceStore) RecordByStudentDate(ctx context.Context, studentID int64, date time.Time) (*store.AttendanceRecord, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey(studentID, date)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// RecordsByDate returns all records for one date. The mock has no school
// index, so callers seed only one school's data per test.
func (m *MockAttendanceStore) RecordsByDate(ctx context.Context, schoolID int64, date time.Time) ([]store.AttendanceRecord, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.AttendanceRecord
	for _, rec := range m.records {
		if sameDate(rec.Date, date) {
			result = append(result, *rec)
		}
	}
	return result, nil
}

// RecordsByClassRange returns records between two dates inclusive.
func (m *MockAttendanceStore) RecordsByClassRange(ctx context.Context, schoolID int64, className string, from, to time.Time) ([]store.AttendanceRecord, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.AttendanceRecord
	for _, rec := range m.records {
		d := rec.Date
		if !d.Before(from) && !d.After(to) {
			result = append(result, *rec)
		}
	}
	return result, nil
}

// AbsentStudentIDs returns students with an explicit absent record on the date.
func (m *MockAttendanceStore) AbsentStudentIDs(ctx context.Context, schoolID int64, date time.Time) ([]int64, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for _, rec := range m.records {
		if sameDate(rec.Date, date) && rec.Status == store.StatusAbsent {
			ids = append(ids, rec.StudentID)
		}
	}
	return ids, nil
}

// Records returns a snapshot of all stored records, for assertions.
func (m *MockAttendanceStore) Records() []store.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.AttendanceRecord
	for _, rec := range m.records {
		result = append(result, *rec)
	}
	return result
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// MockDirectoryStore is a mock implementation of store.DirectoryStore.
type MockDirectoryStore struct {
	mu          sync.RWMutex
	districts   map[int64]*store.District
	schools     map[int64]*store.School
	users       map[int64]*store.User
	assignments map[int64][]store.TeacherAssignment // keyed by teacher id
	nextID      int64

	// Error injection
	SchoolByIDError  error
	UserError        error
	CreateError      error
	AssignmentsError error
}

// NewMockDirectoryStore creates a new mock directory store.
func NewMockDirectoryStore() *MockDirectoryStore {
	return &MockDirectoryStore{
		districts:   make(map[int64]*store.District),
		schools:     make(map[int64]*store.School),
		users:       make(map[int64]*store.User),
		assignments: make(map[int64][]store.TeacherAssignment),
	}
}

// AddDistrict seeds a district.
func (m *MockDirectoryStore) AddDistrict(d store.District) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.districts[d.ID] = &d
}

// AddSchool seeds a school.
func (m *MockDirectoryStore) AddSchool(s store.School) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schools[s.ID] = &s
}

// AddUser seeds a user.
func (m *MockDirectoryStore) AddUser(u store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

// AddAssignment seeds a teacher assignment.
func (m *MockDirectoryStore) AddAssignment(a store.TeacherAssignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.TeacherID] = append(m.assignments[a.TeacherID], a)
}

func (m *MockDirectoryStore) SchoolByID(ctx context.Context, id int64) (*store.School, error) {
	if m.SchoolByIDError != nil {
		return nil, m.SchoolByIDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schools[id]
	if !ok {
		return nil, store.ErrSchoolNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockDirectoryStore) SchoolsByDistrict(ctx context.Context, districtID int64) ([]store.School, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.School
	for _, s := range m.schools {
		if s.DistrictID == districtID {
			result = append(result, *s)
		}
	}
	return result, nil
}

func (m *MockDirectoryStore) CreateDistrict(ctx context.Context, d *store.District) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d.ID = m.nextID
	cp := *d
	m.districts[d.ID] = &cp
	return nil
}

func (m *MockDirectoryStore) CreateSchool(ctx context.Context, s *store.School) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	cp := *s
	m.schools[s.ID] = &cp
	return nil
}

func (m *MockDirectoryStore) DistrictByID(ctx context.Context, id int64) (*store.District, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.districts[id]
	if !ok {
		return nil, store.ErrSchoolNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MockDirectoryStore) UserByID(ctx context.Context, id int64) (*store.User, error) {
	if m.UserError != nil {
		return nil, m.UserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockDirectoryStore) UserByEmail(ctx context.Context, email string) (*store.User, error) {
	if m.UserError != nil {
		return nil, m.UserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *MockDirectoryStore) CreateUser(ctx context.Context, u *store.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockDirectoryStore) TeachersBySchool(ctx context.Context, schoolID int64) ([]store.User, error) {
	if m.UserError != nil {
		return nil, m.UserError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.User
	for _, u := range m.users {
		if u.Role == "teacher" && u.SchoolID != nil && *u.SchoolID == schoolID {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (m *MockDirectoryStore) AssignmentsForTeacher(ctx context.Context, teacherID int64) ([]store.TeacherAssignment, error) {
	if m.AssignmentsError != nil {
		return nil, m.AssignmentsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.TeacherAssignment(nil), m.assignments[teacherID]...), nil
}

func (m *MockDirectoryStore) CreateAssignment(ctx context.Context, a *store.TeacherAssignment) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.assignments[a.TeacherID] = append(m.assignments[a.TeacherID], *a)
	return nil
}

// MockTokenStore is a mock implementation of store.TokenStore.
type MockTokenStore struct {
	mu       sync.RWMutex
	sessions map[string]store.AuthSession

	// Error injection
	SaveError error
	GetError  error
}

// NewMockTokenStore creates a new mock token store.
func NewMockTokenStore() *MockTokenStore {
	return &MockTokenStore{sessions: make(map[string]store.AuthSession)}
}

func (m *MockTokenStore) SaveAuthSession(ctx context.Context, s store.AuthSession) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MockTokenStore) AuthSessionByID(ctx context.Context, id string) (*store.AuthSession, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

func (m *MockTokenStore) DeleteAuthSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MockTokenStore) DeleteExpiredAuthSessions(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// MockSMSStore is a mock implementation of store.SMSStore.
type MockSMSStore struct {
	mu     sync.RWMutex
	sent   []store.SMSRecord
	nextID int64

	// Error injection
	SaveError error
}

// NewMockSMSStore creates a new mock SMS store.
func NewMockSMSStore() *MockSMSStore {
	return &MockSMSStore{}
}

func (m *MockSMSStore) SaveSMS(ctx context.Context, rec *store.SMSRecord) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	m.sent = append(m.sent, *rec)
	return nil
}

func (m *MockSMSStore) SMSHistory(ctx context.Context, schoolID int64, limit int) ([]store.SMSRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []store.SMSRecord
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].SchoolID != schoolID {
			continue
		}
		result = append(result, m.sent[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Verify interface compliance
var _ store.RosterStore = (*MockRosterStore)(nil)
var _ store.CaptureStore = (*MockCaptureStore)(nil)
var _ store.AttendanceStore = (*MockAttendanceStore)(nil)
var _ store.DirectoryStore = (*MockDirectoryStore)(nil)
var _ store.TokenStore = (*MockTokenStore)(nil)
var _ store.SMSStore = (*MockSMSStore)(nil)
