// Package capture owns the attendance-capture pipeline: the per-upload
// session lifecycle, the detect-match-store orchestration, and the
// confirmation step that turns reviewed results into attendance records.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/store"
)

// Manager drives the capture session state machine:
// pending → processing → completed | failed, with failed reachable from
// every non-terminal state. Transitions are enforced by the store's
// conditional updates, so concurrent callers racing on one session id get
// ErrInvalidState instead of a merged result set.
type Manager struct {
	captures  store.CaptureStore
	directory store.DirectoryStore
}

// NewManager creates a session manager.
func NewManager(captures store.CaptureStore, directory store.DirectoryStore) *Manager {
	return &Manager{captures: captures, directory: directory}
}

// Create opens a new pending session for one class photo upload. The
// creator must be authorized to capture attendance for the class; a school
// or class that does not resolve yields ErrInvalidScope.
func (m *Manager) Create(ctx context.Context, className string, schoolID int64, creator access.Actor) (*store.CaptureSession, error) {
	if strings.TrimSpace(className) == "" {
		return nil, fmt.Errorf("%w: empty class name", ErrInvalidScope)
	}

	school, err := m.directory.SchoolByID(ctx, schoolID)
	if err != nil {
		if errors.Is(err, store.ErrSchoolNotFound) {
			return nil, fmt.Errorf("%w: school %d does not exist", ErrInvalidScope, schoolID)
		}
		return nil, fmt.Errorf("resolving school %d: %w", schoolID, err)
	}

	scope := access.Scope{
		SchoolID:         school.ID,
		SchoolDistrictID: school.DistrictID,
		ClassName:        className,
	}
	if err := access.Authorize(creator, access.ActionCaptureAttendance, scope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}

	session := &store.CaptureSession{
		ID:        uuid.NewString(),
		ClassName: className,
		SchoolID:  school.ID,
		CreatedBy: creator.UserID,
		Status:    store.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.captures.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating capture session: %w", err)
	}
	return session, nil
}

// BeginProcessing transitions pending → processing.
func (m *Manager) BeginProcessing(ctx context.Context, sessionID string) error {
	return m.transition(ctx, sessionID, store.StatusPending, store.StatusProcessing, "")
}

// StoreResult transitions processing → completed and persists the full
// result set. The results become immutable afterwards.
func (m *Manager) StoreResult(ctx context.Context, sessionID string, results *store.SessionResults) error {
	applied, err := m.captures.StoreResults(ctx, sessionID, results)
	if err != nil {
		return fmt.Errorf("storing results for session %s: %w", sessionID, err)
	}
	if !applied {
		return m.transitionRefused(ctx, sessionID, store.StatusProcessing)
	}
	return nil
}

// MarkFailed moves any non-terminal session to failed with the given
// reason. The session stays queryable; retrying means creating a new one.
func (m *Manager) MarkFailed(ctx context.Context, sessionID, reason string) error {
	for _, from := range []store.SessionStatus{store.StatusProcessing, store.StatusPending} {
		applied, err := m.captures.Transition(ctx, sessionID, from, store.StatusFailed, reason)
		if err != nil {
			return fmt.Errorf("failing session %s: %w", sessionID, err)
		}
		if applied {
			return nil
		}
	}
	// Neither pending nor processing: missing or already terminal.
	session, err := m.captures.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is already %s", ErrInvalidState, sessionID, session.Status)
}

// Lookup returns the session or store.ErrSessionNotFound.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (*store.CaptureSession, error) {
	return m.captures.SessionByID(ctx, sessionID)
}

func (m *Manager) transition(ctx context.Context, sessionID string, from, to store.SessionStatus, reason string) error {
	applied, err := m.captures.Transition(ctx, sessionID, from, to, reason)
	if err != nil {
		return fmt.Errorf("transitioning session %s to %s: %w", sessionID, to, err)
	}
	if !applied {
		return m.transitionRefused(ctx, sessionID, from)
	}
	return nil
}

// transitionRefused distinguishes a missing session from one in the wrong
// state after a conditional update matched no row.
func (m *Manager) transitionRefused(ctx context.Context, sessionID string, want store.SessionStatus) error {
	session, err := m.captures.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: session %s is %s, want %s", ErrInvalidState, sessionID, session.Status, want)
}
