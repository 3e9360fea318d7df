package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/markrhq/markr/internal/embedding"
	"github.com/markrhq/markr/internal/matcher"
	"github.com/markrhq/markr/internal/store"
)

// Detector is the external face-detection capability consumed by the
// pipeline; the embedding gateway implements it.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]embedding.DetectedFace, error)
}

// Pipeline runs one session from pending to a terminal state:
// beginProcessing → detect → match → storeResult, failing the session with
// a recorded reason on any unrecoverable error. Sessions for different
// photos run fully in parallel; the roster snapshot is the only shared
// read.
type Pipeline struct {
	manager       *Manager
	detector      Detector
	roster        store.RosterStore
	tolerance     float64
	detectTimeout time.Duration
}

// NewPipeline creates a pipeline. tolerance is the configured maximum
// embedding distance for a match; detectTimeout bounds the gateway call.
func NewPipeline(manager *Manager, detector Detector, roster store.RosterStore, tolerance float64, detectTimeout time.Duration) *Pipeline {
	return &Pipeline{
		manager:       manager,
		detector:      detector,
		roster:        roster,
		tolerance:     tolerance,
		detectTimeout: detectTimeout,
	}
}

// Run processes the uploaded photo for the given session and returns the
// stored result set. Errors leave the session in failed with a reason,
// never discarded, so the caller can inspect it and retry with a new
// session. A gateway deadline is reported as ErrTimeout.
func (p *Pipeline) Run(ctx context.Context, session *store.CaptureSession, imageData []byte) (*store.SessionResults, error) {
	if err := p.manager.BeginProcessing(ctx, session.ID); err != nil {
		return nil, err
	}

	detectCtx, cancel := context.WithTimeout(ctx, p.detectTimeout)
	defer cancel()

	faces, err := p.detector.Detect(detectCtx, imageData)
	if err != nil {
		return nil, p.fail(ctx, session.ID, detectFailure(err), err)
	}

	roster, err := p.roster.ActiveStudents(ctx, session.ClassName, session.SchoolID)
	if err != nil {
		return nil, p.fail(ctx, session.ID, ReasonRosterError, err)
	}

	detections := make([]matcher.Detection, len(faces))
	for i, f := range faces {
		detections[i] = matcher.Detection{Index: f.Index, Embedding: f.Embedding}
	}
	entries := make([]matcher.RosterEntry, len(roster))
	for i, s := range roster {
		entries[i] = matcher.RosterEntry{
			StudentID:     s.ID,
			Name:          s.Name,
			StudentNumber: s.StudentNumber,
			Embedding:     s.Embedding,
		}
	}

	matches, unmatched := matcher.Run(detections, entries, p.tolerance)

	results := &store.SessionResults{
		Matches:       toStoreMatches(matches),
		UnmatchedIdx:  unmatched,
		DetectedFaces: len(faces),
	}
	if err := p.manager.StoreResult(ctx, session.ID, results); err != nil {
		return nil, err
	}
	return results, nil
}

// fail records the failure reason on the session and returns the original
// error (mapped to ErrTimeout for deadlines). Marking can itself fail when
// a concurrent caller already moved the session; the original error still
// wins.
func (p *Pipeline) fail(ctx context.Context, sessionID, reason string, cause error) error {
	if err := p.manager.MarkFailed(ctx, sessionID, reason); err != nil {
		log.Printf("session %s: failed to record failure reason %q: %v", sessionID, reason, err)
	}
	if reason == ReasonTimeout {
		return fmt.Errorf("%w: %v", ErrTimeout, cause)
	}
	return cause
}

func detectFailure(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, embedding.ErrUnreadableImage):
		return ReasonUnreadableImage
	default:
		return ReasonDetectorError
	}
}

func toStoreMatches(matches []matcher.Match) []store.MatchResult {
	out := make([]store.MatchResult, len(matches))
	for i, m := range matches {
		out[i] = store.MatchResult{
			FaceIndex:     m.FaceIndex,
			StudentID:     m.StudentID,
			StudentName:   m.StudentName,
			StudentNumber: m.StudentNumber,
			Confidence:    m.Confidence,
		}
	}
	return out
}
