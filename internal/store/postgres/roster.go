package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/markrhq/markr/internal/store"
)

// RosterRepository provides PostgreSQL-backed student storage.
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new roster repository.
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

const studentColumns = `id, name, student_number, class_name, school_id,
	guardian_name, guardian_phone, health_notes, embedding, active, created_at`

// nullVector scans a nullable pgvector column.
type nullVector struct {
	vec   pgvector.Vector
	valid bool
}

func (n *nullVector) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	n.valid = true
	return n.vec.Scan(src)
}

func scanStudent(row interface{ Scan(...any) error }) (*store.Student, error) {
	var s store.Student
	var vec nullVector
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.StudentNumber,
		&s.ClassName,
		&s.SchoolID,
		&s.GuardianName,
		&s.GuardianPhone,
		&s.HealthNotes,
		&vec,
		&s.Active,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if vec.valid {
		s.Embedding = vec.vec.Slice()
	}
	return &s, nil
}

// ActiveStudents returns the active students of a class within a school.
func (r *RosterRepository) ActiveStudents(ctx context.Context, className string, schoolID int64) ([]store.Student, error) {
	query := `
		SELECT ` + studentColumns + `
		FROM students
		WHERE school_id = $1 AND class_name = $2 AND active
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, schoolID, className)
	if err != nil {
		return nil, fmt.Errorf("query class roster: %w", err)
	}
	defer rows.Close()

	var students []store.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// StudentByID retrieves a student by id.
func (r *RosterRepository) StudentByID(ctx context.Context, id int64) (*store.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	s, err := scanStudent(r.pool.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, store.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// StudentByNumber retrieves a student by external student number.
func (r *RosterRepository) StudentByNumber(ctx context.Context, number string) (*store.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE student_number = $1`
	s, err := scanStudent(r.pool.QueryRow(ctx, query, number))
	if err == sql.ErrNoRows {
		return nil, store.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student by number: %w", err)
	}
	return s, nil
}

// CreateStudent inserts a student and fills in the generated id.
func (r *RosterRepository) CreateStudent(ctx context.Context, s *store.Student) error {
	query := `
		INSERT INTO students (name, student_number, class_name, school_id,
			guardian_name, guardian_phone, health_notes, embedding, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	var embedding any
	if len(s.Embedding) > 0 {
		embedding = pgvector.NewVector(s.Embedding)
	}
	err := r.pool.QueryRow(ctx, query,
		s.Name, s.StudentNumber, s.ClassName, s.SchoolID,
		s.GuardianName, s.GuardianPhone, s.HealthNotes, embedding, s.Active,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateStudentEmbedding replaces a student's reference embedding.
func (r *RosterRepository) UpdateStudentEmbedding(ctx context.Context, id int64, embedding []float32) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE students SET embedding = $2 WHERE id = $1",
		id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("update student embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrStudentNotFound
	}
	return nil
}

// DeactivateStudent marks a student inactive; attendance history is kept.
func (r *RosterRepository) DeactivateStudent(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, "UPDATE students SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrStudentNotFound
	}
	return nil
}

// SearchStudents returns active students of a school whose normalized name
// contains the normalized query. Normalization runs in Go so diacritics
// match the same way everywhere; school rosters are small enough to scan.
func (r *RosterRepository) SearchStudents(ctx context.Context, schoolID int64, query string) ([]store.Student, error) {
	sqlQuery := `
		SELECT ` + studentColumns + `
		FROM students
		WHERE school_id = $1 AND active
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, sqlQuery, schoolID)
	if err != nil {
		return nil, fmt.Errorf("query school students: %w", err)
	}
	defer rows.Close()

	q := store.NormalizeName(query)
	var students []store.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if strings.Contains(store.NormalizeName(s.Name), q) {
			students = append(students, *s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

var _ store.RosterStore = (*RosterRepository)(nil)
