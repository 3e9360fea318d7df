package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/store"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// RequireAuth resolves the request's login session to an access.Actor and
// stores it in the request context. Requests without a valid session, or
// whose user no longer exists or is inactive, get a 401.
func RequireAuth(sm *SessionManager, directory store.DirectoryStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sm.GetSessionFromRequest(r)
			if session == nil {
				unauthorized(w)
				return
			}

			actor, err := ResolveActor(r.Context(), directory, session.UserID)
			if err != nil {
				log.Printf("resolving actor for user %d failed: %v", session.UserID, err)
				unauthorized(w)
				return
			}

			ctx := SetActorInContext(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResolveActor loads the user and, for teachers, their class assignments,
// and builds the authorization actor the policy layer evaluates.
func ResolveActor(ctx context.Context, directory store.DirectoryStore, userID int64) (access.Actor, error) {
	user, err := directory.UserByID(ctx, userID)
	if err != nil {
		return access.Actor{}, err
	}
	if !user.Active {
		return access.Actor{}, access.ErrUnauthenticated
	}

	actor := access.Actor{
		UserID: user.ID,
		Role:   access.Role(user.Role),
		Active: user.Active,
	}
	if user.SchoolID != nil {
		actor.SchoolID = *user.SchoolID
	}
	if user.DistrictID != nil {
		actor.DistrictID = *user.DistrictID
	}

	if actor.Role == access.RoleTeacher {
		assignments, err := directory.AssignmentsForTeacher(ctx, user.ID)
		if err != nil {
			return access.Actor{}, err
		}
		for _, a := range assignments {
			actor.Assignments = append(actor.Assignments, access.ClassAssignment{
				ClassName: a.ClassName,
				SchoolID:  a.SchoolID,
			})
		}
	}

	return actor, nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error": "unauthorized"}`))
}

// GetActorFromContext retrieves the authenticated actor from the context.
func GetActorFromContext(ctx context.Context) (access.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(access.Actor)
	return actor, ok
}

// SetActorInContext adds an actor to the context (primarily for testing)
func SetActorInContext(ctx context.Context, actor access.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}
