package capture

import "errors"

var (
	// ErrInvalidScope signals a create call whose class or school does not
	// resolve, or whose creator has no authority over them.
	ErrInvalidScope = errors.New("class or school out of scope")
	// ErrInvalidState signals an illegal session lifecycle transition,
	// including a second caller racing on the same session.
	ErrInvalidState = errors.New("invalid session state for this operation")
	// ErrTimeout signals that the embedding gateway call exceeded the
	// configured deadline; the session is marked failed with reason
	// "timeout" before this is returned.
	ErrTimeout = errors.New("face detection timed out")
)

// Failure reasons recorded on sessions that transition to failed.
const (
	ReasonTimeout         = "timeout"
	ReasonUnreadableImage = "unreadable_image"
	ReasonDetectorError   = "detector_error"
	ReasonRosterError     = "roster_unavailable"
	ReasonStorageError    = "storage_error"
)
