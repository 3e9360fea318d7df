// Package access implements the authorization decision for every mutating
// entry point. Authorize is a pure function over plain identifiers: it has
// no side effects and performs no data access of its own; callers resolve
// the actor and the target scope first.
package access

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Role is the actor's hierarchy tier.
type Role string

const (
	RoleTeacher   Role = "teacher"
	RolePrincipal Role = "principal"
	RoleDistrict  Role = "district"
)

// Actions gated by the policy matrix in policy.yaml.
const (
	ActionCaptureAttendance  = "attendance.capture"
	ActionConfirmAttendance  = "attendance.confirm"
	ActionOverrideAttendance = "attendance.override"
	ActionReportAttendance   = "attendance.report"
	ActionReadStudents       = "students.read"
	ActionWriteStudents      = "students.write"
	ActionReadTeachers       = "teachers.read"
	ActionWriteTeachers      = "teachers.write"
	ActionSendSMS            = "sms.send"
	ActionReadSMSHistory     = "sms.history"
	ActionSchoolAnalytics    = "analytics.school"
	ActionDistrictOverview   = "district.overview"
)

// Denial reasons, checked with errors.Is.
var (
	ErrUnauthenticated  = errors.New("user not found or inactive")
	ErrInsufficientRole = errors.New("insufficient permissions")
	ErrScopeViolation   = errors.New("scope access denied")
)

// ClassAssignment is one class a teacher is assigned to within a school.
type ClassAssignment struct {
	ClassName string
	SchoolID  int64
}

// Actor is the authenticated caller, resolved by the identity layer.
type Actor struct {
	UserID      int64
	Role        Role
	SchoolID    int64 // 0 for district officers
	DistrictID  int64 // 0 for school-scoped roles whose district is implied
	Active      bool
	Assignments []ClassAssignment // teacher class assignments
}

// Scope is the target of an action. SchoolID 0 means "no school filter"
// (all schools in the actor's district); SchoolDistrictID carries the
// target school's district, resolved by the caller.
type Scope struct {
	SchoolID         int64
	SchoolDistrictID int64
	ClassName        string
}

//go:embed policy.yaml
var policyYAML []byte

type policyFile struct {
	Actions map[string][]Role `yaml:"actions"`
}

var allowedRoles map[string]map[Role]bool

func init() {
	var pf policyFile
	if err := yaml.Unmarshal(policyYAML, &pf); err != nil {
		// Embedded file, so this can only be a build-time mistake.
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	allowedRoles = make(map[string]map[Role]bool, len(pf.Actions))
	for action, roles := range pf.Actions {
		set := make(map[Role]bool, len(roles))
		for _, r := range roles {
			set[r] = true
		}
		allowedRoles[action] = set
	}
}

// Authorize decides whether the actor may perform the action on the scope.
// Rules are evaluated in order: authentication, role, then scope. Returns
// nil when allowed, or one of ErrUnauthenticated, ErrInsufficientRole,
// ErrScopeViolation wrapped with detail.
func Authorize(actor Actor, action string, scope Scope) error {
	if actor.UserID == 0 || !actor.Active {
		return ErrUnauthenticated
	}

	roles, ok := allowedRoles[action]
	if !ok || !roles[actor.Role] {
		return fmt.Errorf("%w: role %s may not %s", ErrInsufficientRole, actor.Role, action)
	}

	switch actor.Role {
	case RoleTeacher:
		if scope.SchoolID != actor.SchoolID {
			return fmt.Errorf("%w: school %d is not the teacher's school", ErrScopeViolation, scope.SchoolID)
		}
		if scope.ClassName != "" && !hasAssignment(actor, scope.ClassName, scope.SchoolID) {
			return fmt.Errorf("%w: not assigned to class %s", ErrScopeViolation, scope.ClassName)
		}
	case RolePrincipal:
		if scope.SchoolID != actor.SchoolID {
			return fmt.Errorf("%w: school %d is not the principal's school", ErrScopeViolation, scope.SchoolID)
		}
	case RoleDistrict:
		// SchoolID 0 means every school in the actor's own district.
		if scope.SchoolID != 0 && scope.SchoolDistrictID != actor.DistrictID {
			return fmt.Errorf("%w: school %d is outside district %d", ErrScopeViolation, scope.SchoolID, actor.DistrictID)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInsufficientRole, actor.Role)
	}

	return nil
}

func hasAssignment(actor Actor, className string, schoolID int64) bool {
	for _, a := range actor.Assignments {
		if a.ClassName == className && a.SchoolID == schoolID {
			return true
		}
	}
	return false
}
