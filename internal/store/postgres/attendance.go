package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/markrhq/markr/internal/store"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `id, student_id, date, status, confidence, method,
	recorded_by, COALESCE(session_id::text, ''), notes, created_at`

func scanAttendance(row interface{ Scan(...any) error }) (*store.AttendanceRecord, error) {
	var rec store.AttendanceRecord
	var confidence sql.NullFloat64
	err := row.Scan(
		&rec.ID,
		&rec.StudentID,
		&rec.Date,
		&rec.Status,
		&confidence,
		&rec.Method,
		&rec.RecordedBy,
		&rec.SessionID,
		&rec.Notes,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if confidence.Valid {
		rec.Confidence = &confidence.Float64
	}
	return &rec, nil
}

// nullUUID maps an empty session id to SQL NULL.
func nullUUID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CommitConfirmations atomically replaces the automatic records of one
// session and date with the given list. Rows held by a manual override
// keep their override; everything runs in a single transaction so a
// failure leaves the previous confirmation intact.
func (r *AttendanceRepository) CommitConfirmations(ctx context.Context, date time.Time, sessionID string, records []store.AttendanceRecord) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM attendance_records
		WHERE date = $1 AND session_id = $2 AND method = $3
	`, date, sessionID, store.MethodFaceRecognition)
	if err != nil {
		return fmt.Errorf("clear previous confirmation: %w", err)
	}

	insert := `
		INSERT INTO attendance_records
			(student_id, date, status, confidence, method, recorded_by, session_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence,
			method = EXCLUDED.method,
			recorded_by = EXCLUDED.recorded_by,
			session_id = EXCLUDED.session_id,
			notes = EXCLUDED.notes
		WHERE attendance_records.method = $9
	`
	for _, rec := range records {
		_, err := tx.ExecContext(ctx, insert,
			rec.StudentID, date, rec.Status, rec.Confidence, rec.Method,
			rec.RecordedBy, nullUUID(rec.SessionID), rec.Notes,
			store.MethodFaceRecognition)
		if err != nil {
			return fmt.Errorf("insert attendance record for student %d: %w", rec.StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit confirmation: %w", err)
	}
	return nil
}

// UpsertOverride writes a manual override record, updating the
// (student, date) row in place or inserting one. The originating session
// id, if any, is preserved.
func (r *AttendanceRepository) UpsertOverride(ctx context.Context, rec store.AttendanceRecord) error {
	query := `
		INSERT INTO attendance_records
			(student_id, date, status, confidence, method, recorded_by, session_id, notes)
		VALUES ($1, $2, $3, NULL, $4, $5, NULL, $6)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = NULL,
			method = EXCLUDED.method,
			recorded_by = EXCLUDED.recorded_by,
			notes = EXCLUDED.notes
	`
	_, err := r.pool.Exec(ctx, query,
		rec.StudentID, rec.Date, rec.Status, store.MethodManualOverride,
		rec.RecordedBy, rec.Notes)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

// RecordByStudentDate returns nil when no record exists.
func (r *AttendanceRepository) RecordByStudentDate(ctx context.Context, studentID int64, date time.Time) (*store.AttendanceRecord, error) {
	query := `
		SELECT ` + attendanceColumns + `
		FROM attendance_records
		WHERE student_id = $1 AND date = $2
	`
	rec, err := scanAttendance(r.pool.QueryRow(ctx, query, studentID, date))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance record: %w", err)
	}
	return rec, nil
}

// RecordsByDate returns all records for one date across the given school.
func (r *AttendanceRepository) RecordsByDate(ctx context.Context, schoolID int64, date time.Time) ([]store.AttendanceRecord, error) {
	query := `
		SELECT r.id, r.student_id, r.date, r.status, r.confidence, r.method,
		       r.recorded_by, COALESCE(r.session_id::text, ''), r.notes, r.created_at
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		WHERE s.school_id = $1 AND r.date = $2
		ORDER BY r.student_id
	`
	return r.queryRecords(ctx, query, schoolID, date)
}

// RecordsByClassRange returns records for a class between two dates inclusive.
func (r *AttendanceRepository) RecordsByClassRange(ctx context.Context, schoolID int64, className string, from, to time.Time) ([]store.AttendanceRecord, error) {
	query := `
		SELECT r.id, r.student_id, r.date, r.status, r.confidence, r.method,
		       r.recorded_by, COALESCE(r.session_id::text, ''), r.notes, r.created_at
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		WHERE s.school_id = $1 AND s.class_name = $2 AND r.date BETWEEN $3 AND $4
		ORDER BY r.date, r.student_id
	`
	return r.queryRecords(ctx, query, schoolID, className, from, to)
}

// AbsentStudentIDs returns students with an explicit absent record on the
// date. Students never captured that day are not included.
func (r *AttendanceRepository) AbsentStudentIDs(ctx context.Context, schoolID int64, date time.Time) ([]int64, error) {
	query := `
		SELECT r.student_id
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		WHERE s.school_id = $1 AND r.date = $2 AND r.status = $3
		ORDER BY r.student_id
	`
	rows, err := r.pool.Query(ctx, query, schoolID, date, store.StatusAbsent)
	if err != nil {
		return nil, fmt.Errorf("query absent students: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate absent students: %w", err)
	}
	return ids, nil
}

func (r *AttendanceRepository) queryRecords(ctx context.Context, query string, args ...any) ([]store.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []store.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

var _ store.AttendanceStore = (*AttendanceRepository)(nil)
