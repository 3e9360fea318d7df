package store

import "errors"

// Not-found sentinels. Repositories return these wrapped or bare; callers
// check with errors.Is.
var (
	ErrSessionNotFound = errors.New("capture session not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSchoolNotFound  = errors.New("school not found")
)
