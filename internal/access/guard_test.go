package access

import (
	"errors"
	"testing"
)

func teacherActor() Actor {
	return Actor{
		UserID:   1,
		Role:     RoleTeacher,
		SchoolID: 10,
		Active:   true,
		Assignments: []ClassAssignment{
			{ClassName: "class-1", SchoolID: 10},
			{ClassName: "class-2", SchoolID: 10},
		},
	}
}

func principalActor() Actor {
	return Actor{UserID: 2, Role: RolePrincipal, SchoolID: 10, Active: true}
}

func districtActor() Actor {
	return Actor{UserID: 3, Role: RoleDistrict, DistrictID: 100, Active: true}
}

func TestAuthorizeInactiveActor(t *testing.T) {
	actor := teacherActor()
	actor.Active = false

	err := Authorize(actor, ActionCaptureAttendance, Scope{SchoolID: 10, ClassName: "class-1"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAuthorizeUnresolvableActor(t *testing.T) {
	err := Authorize(Actor{}, ActionCaptureAttendance, Scope{SchoolID: 10})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAuthorizeRoleNotAllowed(t *testing.T) {
	// Teachers may not send SMS.
	err := Authorize(teacherActor(), ActionSendSMS, Scope{SchoolID: 10})
	if !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("expected ErrInsufficientRole, got %v", err)
	}
}

func TestAuthorizeUnknownAction(t *testing.T) {
	err := Authorize(principalActor(), "attendance.delete", Scope{SchoolID: 10})
	if !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("expected ErrInsufficientRole for unknown action, got %v", err)
	}
}

func TestAuthorizeTeacherAssignedClass(t *testing.T) {
	err := Authorize(teacherActor(), ActionCaptureAttendance, Scope{SchoolID: 10, ClassName: "class-1"})
	if err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestAuthorizeTeacherUnassignedClass(t *testing.T) {
	err := Authorize(teacherActor(), ActionCaptureAttendance, Scope{SchoolID: 10, ClassName: "class-9"})
	if !errors.Is(err, ErrScopeViolation) {
		t.Errorf("expected ErrScopeViolation, got %v", err)
	}
}

func TestAuthorizeTeacherWrongSchool(t *testing.T) {
	// Assignment class name matches but the target school differs.
	err := Authorize(teacherActor(), ActionCaptureAttendance, Scope{SchoolID: 11, ClassName: "class-1"})
	if !errors.Is(err, ErrScopeViolation) {
		t.Errorf("expected ErrScopeViolation, got %v", err)
	}
}

func TestAuthorizePrincipalOwnSchool(t *testing.T) {
	err := Authorize(principalActor(), ActionOverrideAttendance, Scope{SchoolID: 10})
	if err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestAuthorizePrincipalOtherSchool(t *testing.T) {
	err := Authorize(principalActor(), ActionOverrideAttendance, Scope{SchoolID: 11})
	if !errors.Is(err, ErrScopeViolation) {
		t.Errorf("expected ErrScopeViolation, got %v", err)
	}
}

func TestAuthorizeDistrictSchoolInDistrict(t *testing.T) {
	err := Authorize(districtActor(), ActionReportAttendance, Scope{SchoolID: 10, SchoolDistrictID: 100})
	if err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestAuthorizeDistrictSchoolOutsideDistrict(t *testing.T) {
	err := Authorize(districtActor(), ActionReportAttendance, Scope{SchoolID: 10, SchoolDistrictID: 200})
	if !errors.Is(err, ErrScopeViolation) {
		t.Errorf("expected ErrScopeViolation, got %v", err)
	}
}

func TestAuthorizeDistrictNoSchoolFilter(t *testing.T) {
	// Empty school filter means all schools in the actor's district.
	err := Authorize(districtActor(), ActionDistrictOverview, Scope{})
	if err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestAuthorizeEvaluationOrder(t *testing.T) {
	// An inactive actor with a wrong role is reported as unauthenticated,
	// not as a role failure.
	actor := teacherActor()
	actor.Active = false
	err := Authorize(actor, ActionSendSMS, Scope{SchoolID: 11})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("authentication must be checked first, got %v", err)
	}

	// An active actor with the wrong role in the wrong scope is reported
	// as a role failure, not a scope violation.
	err = Authorize(teacherActor(), ActionSendSMS, Scope{SchoolID: 11})
	if !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("role must be checked before scope, got %v", err)
	}
}

func TestPolicyMatrixRoles(t *testing.T) {
	tests := []struct {
		action string
		role   Role
		allow  bool
	}{
		{ActionCaptureAttendance, RoleTeacher, true},
		{ActionCaptureAttendance, RolePrincipal, true},
		{ActionCaptureAttendance, RoleDistrict, false},
		{ActionOverrideAttendance, RoleTeacher, false},
		{ActionOverrideAttendance, RolePrincipal, true},
		{ActionDistrictOverview, RolePrincipal, false},
		{ActionDistrictOverview, RoleDistrict, true},
		{ActionWriteStudents, RoleTeacher, false},
		{ActionWriteStudents, RolePrincipal, true},
	}

	for _, tc := range tests {
		allowed := allowedRoles[tc.action][tc.role]
		if allowed != tc.allow {
			t.Errorf("policy %s for %s: expected %v, got %v", tc.action, tc.role, tc.allow, allowed)
		}
	}
}
