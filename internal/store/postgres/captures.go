package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/markrhq/markr/internal/store"
)

// CaptureRepository provides PostgreSQL-backed capture session storage.
// Status transitions use conditional updates so concurrent workers racing
// on one session id cannot both win.
type CaptureRepository struct {
	pool *Pool
}

// NewCaptureRepository creates a new capture repository.
func NewCaptureRepository(pool *Pool) *CaptureRepository {
	return &CaptureRepository{pool: pool}
}

// CreateSession stores a new session.
func (r *CaptureRepository) CreateSession(ctx context.Context, s *store.CaptureSession) error {
	query := `
		INSERT INTO capture_sessions (id, class_name, school_id, created_by, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		s.ID, s.ClassName, s.SchoolID, s.CreatedBy, string(s.Status),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create capture session: %w", err)
	}
	return nil
}

// SessionByID retrieves a session by id.
func (r *CaptureRepository) SessionByID(ctx context.Context, id string) (*store.CaptureSession, error) {
	query := `
		SELECT id, class_name, school_id, created_by, status, failure_reason,
		       detected_faces, results, created_at, updated_at
		FROM capture_sessions
		WHERE id = $1
	`
	var s store.CaptureSession
	var status string
	var results []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.ClassName,
		&s.SchoolID,
		&s.CreatedBy,
		&status,
		&s.FailureReason,
		&s.DetectedFaces,
		&results,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get capture session: %w", err)
	}
	s.Status = store.SessionStatus(status)
	if len(results) > 0 {
		s.Results = &store.SessionResults{}
		if err := json.Unmarshal(results, s.Results); err != nil {
			return nil, fmt.Errorf("unmarshal session results: %w", err)
		}
	}
	return &s, nil
}

// Transition conditionally moves a session between statuses. Returns false
// without error when the session is not in the expected status.
func (r *CaptureRepository) Transition(ctx context.Context, id string, from, to store.SessionStatus, reason string) (bool, error) {
	query := `
		UPDATE capture_sessions
		SET status = $3, failure_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := r.pool.Exec(ctx, query, id, string(from), string(to), reason)
	if err != nil {
		return false, fmt.Errorf("transition capture session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}

// StoreResults completes a processing session with its result set.
func (r *CaptureRepository) StoreResults(ctx context.Context, id string, results *store.SessionResults) (bool, error) {
	payload, err := json.Marshal(results)
	if err != nil {
		return false, fmt.Errorf("marshal session results: %w", err)
	}

	query := `
		UPDATE capture_sessions
		SET status = $2, results = $3, detected_faces = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`
	result, err := r.pool.Exec(ctx, query,
		id, string(store.StatusCompleted), payload, results.DetectedFaces, string(store.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("store session results: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}

var _ store.CaptureStore = (*CaptureRepository)(nil)
