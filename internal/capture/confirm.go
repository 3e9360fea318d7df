package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/store"
)

// Confirmation is one reviewed entry of a confirm call.
type Confirmation struct {
	StudentID  int64    `json:"student_id"`
	Status     string   `json:"status"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Committer applies human-reviewed confirmations to durable attendance
// records. Confirm is idempotent in effect per session: the store's
// delete-then-insert runs in one transaction scoped to (date, session id).
type Committer struct {
	captures   store.CaptureStore
	attendance store.AttendanceStore
	roster     store.RosterStore
	directory  store.DirectoryStore
}

// NewCommitter creates a committer.
func NewCommitter(captures store.CaptureStore, attendance store.AttendanceStore, roster store.RosterStore, directory store.DirectoryStore) *Committer {
	return &Committer{captures: captures, attendance: attendance, roster: roster, directory: directory}
}

// Confirm commits the confirmation list against today's date and returns
// the number of accepted entries. The session must exist and be completed;
// the actor must be authorized for the session's class and school. Entries
// referencing unknown or out-of-scope students are silently skipped and
// not counted. Records already held by a manual override for the same
// (student, date) are left untouched.
func (c *Committer) Confirm(ctx context.Context, sessionID string, confirmations []Confirmation, actor access.Actor) (int, error) {
	session, err := c.captures.SessionByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.Status != store.StatusCompleted {
		return 0, fmt.Errorf("%w: session %s is %s, confirm requires completed", ErrInvalidState, sessionID, session.Status)
	}

	school, err := c.directory.SchoolByID(ctx, session.SchoolID)
	if err != nil {
		return 0, fmt.Errorf("resolving session school: %w", err)
	}
	scope := access.Scope{
		SchoolID:         school.ID,
		SchoolDistrictID: school.DistrictID,
		ClassName:        session.ClassName,
	}
	if err := access.Authorize(actor, access.ActionConfirmAttendance, scope); err != nil {
		return 0, err
	}

	// Attendance is always recorded against the date of confirmation, not
	// the photo's timestamp.
	today := DateOf(time.Now().UTC())

	records := make([]store.AttendanceRecord, 0, len(confirmations))
	for _, entry := range confirmations {
		if entry.StudentID == 0 {
			continue
		}
		student, err := c.roster.StudentByID(ctx, entry.StudentID)
		if err != nil {
			if errors.Is(err, store.ErrStudentNotFound) {
				continue
			}
			return 0, fmt.Errorf("resolving student %d: %w", entry.StudentID, err)
		}

		studentScope := access.Scope{
			SchoolID:         student.SchoolID,
			SchoolDistrictID: school.DistrictID,
			ClassName:        student.ClassName,
		}
		if access.Authorize(actor, access.ActionConfirmAttendance, studentScope) != nil {
			continue
		}

		status := entry.Status
		if status == "" {
			status = store.StatusPresent
		}
		if status != store.StatusPresent && status != store.StatusAbsent {
			continue
		}

		records = append(records, store.AttendanceRecord{
			StudentID:  student.ID,
			Date:       today,
			Status:     status,
			Confidence: entry.Confidence,
			Method:     store.MethodFaceRecognition,
			RecordedBy: actor.UserID,
			SessionID:  sessionID,
		})
	}

	if err := c.attendance.CommitConfirmations(ctx, today, sessionID, records); err != nil {
		return 0, fmt.Errorf("committing confirmations for session %s: %w", sessionID, err)
	}
	return len(records), nil
}

// Override writes a manual attendance decision for one student and date,
// replacing any automatic record in place. Principal scope only; this is
// the single path allowed to touch a date other than today.
func (c *Committer) Override(ctx context.Context, studentID int64, date time.Time, status string, actor access.Actor, reason, notes string) error {
	if status != store.StatusPresent && status != store.StatusAbsent {
		return fmt.Errorf("invalid attendance status %q", status)
	}

	student, err := c.roster.StudentByID(ctx, studentID)
	if err != nil {
		return err
	}
	school, err := c.directory.SchoolByID(ctx, student.SchoolID)
	if err != nil {
		return fmt.Errorf("resolving student school: %w", err)
	}
	scope := access.Scope{
		SchoolID:         school.ID,
		SchoolDistrictID: school.DistrictID,
		ClassName:        student.ClassName,
	}
	if err := access.Authorize(actor, access.ActionOverrideAttendance, scope); err != nil {
		return err
	}

	rec := store.AttendanceRecord{
		StudentID:  student.ID,
		Date:       DateOf(date),
		Status:     status,
		Confidence: nil, // overrides carry no recognition confidence
		Method:     store.MethodManualOverride,
		RecordedBy: actor.UserID,
		Notes:      overrideNotes(reason, notes),
	}
	if err := c.attendance.UpsertOverride(ctx, rec); err != nil {
		return fmt.Errorf("writing override for student %d: %w", studentID, err)
	}
	return nil
}

// DateOf truncates a timestamp to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func overrideNotes(reason, notes string) string {
	if reason == "" {
		return notes
	}
	return strings.TrimSpace("Override: " + reason + ". " + notes)
}
