package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/markrhq/markr/internal/store"
)

const (
	sessionCookieName = "markr_session"
	sessionDuration   = 24 * time.Hour
)

// SessionManager issues and validates login sessions. Session ids are
// opaque random tokens persisted server-side; the cookie carries the id
// plus an HMAC signature so a tampered cookie is rejected before any
// storage lookup.
type SessionManager struct {
	secret []byte
	tokens store.TokenStore
}

// NewSessionManager creates a session manager backed by the given token
// store. The secret signs session cookies and must stay stable across
// restarts or every issued cookie is invalidated.
func NewSessionManager(secret string, tokens store.TokenStore) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		tokens: tokens,
	}
}

// CreateSession creates and persists a new session for the user.
func (sm *SessionManager) CreateSession(ctx context.Context, userID int64) (*store.AuthSession, error) {
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	now := time.Now().UTC()
	session := store.AuthSession{
		ID:        base64.URLEncoding.EncodeToString(idBytes),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionDuration),
	}
	if err := sm.tokens.SaveAuthSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}
	return &session, nil
}

// GetSession returns the session by id, or nil if missing or expired.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *store.AuthSession {
	session, err := sm.tokens.AuthSessionByID(ctx, sessionID)
	if err != nil {
		log.Printf("session lookup failed: %v", err)
		return nil
	}
	return session
}

// DeleteSession removes a session.
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	if err := sm.tokens.DeleteAuthSession(ctx, sessionID); err != nil {
		log.Printf("session delete failed: %v", err)
	}
}

// SetSessionCookie writes the signed session cookie.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, r *http.Request, session *store.AuthSession) {
	signature := sm.signData(session.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID + "." + signature,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}

// ClearSessionCookie removes the session cookie.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from a request, trying the
// signed cookie first and a bearer token second.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *store.AuthSession {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		parts := strings.SplitN(cookie.Value, ".", 2)
		if len(parts) == 2 && sm.verifySignature(parts[0], parts[1]) {
			if session := sm.GetSession(r.Context(), parts[0]); session != nil {
				return session
			}
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		sessionID := strings.TrimPrefix(authHeader, "Bearer ")
		if session := sm.GetSession(r.Context(), sessionID); session != nil {
			return session
		}
	}

	return nil
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SessionData is a helper struct for JSON responses
type SessionData struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// SessionJSON returns the session fields safe to expose in responses.
func SessionJSON(s *store.AuthSession) SessionData {
	return SessionData{
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	}
}
