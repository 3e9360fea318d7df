package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/markrhq/markr/internal/store"
)

// DirectoryRepository provides PostgreSQL-backed storage for districts,
// schools, users, and teacher assignments.
type DirectoryRepository struct {
	pool *Pool
}

// NewDirectoryRepository creates a new directory repository.
func NewDirectoryRepository(pool *Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

func (r *DirectoryRepository) SchoolByID(ctx context.Context, id int64) (*store.School, error) {
	query := `
		SELECT id, name, address, district_id, principal_id, active, created_at
		FROM schools
		WHERE id = $1
	`
	var s store.School
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Address, &s.DistrictID, &s.PrincipalID, &s.Active, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get school: %w", err)
	}
	return &s, nil
}

func (r *DirectoryRepository) SchoolsByDistrict(ctx context.Context, districtID int64) ([]store.School, error) {
	query := `
		SELECT id, name, address, district_id, principal_id, active, created_at
		FROM schools
		WHERE district_id = $1
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query, districtID)
	if err != nil {
		return nil, fmt.Errorf("query district schools: %w", err)
	}
	defer rows.Close()

	var schools []store.School
	for rows.Next() {
		var s store.School
		if err := rows.Scan(&s.ID, &s.Name, &s.Address, &s.DistrictID, &s.PrincipalID, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan school: %w", err)
		}
		schools = append(schools, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schools: %w", err)
	}
	return schools, nil
}

func (r *DirectoryRepository) CreateDistrict(ctx context.Context, d *store.District) error {
	err := r.pool.QueryRow(ctx,
		"INSERT INTO districts (name, state) VALUES ($1, $2) RETURNING id, created_at",
		d.Name, d.State,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create district: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) CreateSchool(ctx context.Context, s *store.School) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO schools (name, address, district_id, principal_id, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, s.Name, s.Address, s.DistrictID, s.PrincipalID, s.Active).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) DistrictByID(ctx context.Context, id int64) (*store.District, error) {
	var d store.District
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, state, created_at FROM districts WHERE id = $1", id,
	).Scan(&d.ID, &d.Name, &d.State, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrSchoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get district: %w", err)
	}
	return &d, nil
}

const userColumns = `id, email, password_hash, name, role, school_id, district_id, active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.SchoolID, &u.DistrictID, &u.Active, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *DirectoryRepository) UserByID(ctx context.Context, id int64) (*store.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *DirectoryRepository) UserByEmail(ctx context.Context, email string) (*store.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", email))
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *DirectoryRepository) CreateUser(ctx context.Context, u *store.User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, role, school_id, district_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, u.Email, u.PasswordHash, u.Name, u.Role, u.SchoolID, u.DistrictID, u.Active,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) TeachersBySchool(ctx context.Context, schoolID int64) ([]store.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = 'teacher' AND school_id = $1
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query, schoolID)
	if err != nil {
		return nil, fmt.Errorf("query school teachers: %w", err)
	}
	defer rows.Close()

	var teachers []store.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan teacher: %w", err)
		}
		teachers = append(teachers, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teachers: %w", err)
	}
	return teachers, nil
}

func (r *DirectoryRepository) AssignmentsForTeacher(ctx context.Context, teacherID int64) ([]store.TeacherAssignment, error) {
	query := `
		SELECT id, teacher_id, class_name, subject, school_id, created_at
		FROM teacher_assignments
		WHERE teacher_id = $1
		ORDER BY class_name
	`
	rows, err := r.pool.Query(ctx, query, teacherID)
	if err != nil {
		return nil, fmt.Errorf("query teacher assignments: %w", err)
	}
	defer rows.Close()

	var assignments []store.TeacherAssignment
	for rows.Next() {
		var a store.TeacherAssignment
		if err := rows.Scan(&a.ID, &a.TeacherID, &a.ClassName, &a.Subject, &a.SchoolID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return assignments, nil
}

func (r *DirectoryRepository) CreateAssignment(ctx context.Context, a *store.TeacherAssignment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO teacher_assignments (teacher_id, class_name, subject, school_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, a.TeacherID, a.ClassName, a.Subject, a.SchoolID).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

var _ store.DirectoryStore = (*DirectoryRepository)(nil)
