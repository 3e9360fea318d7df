package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/store"
	"github.com/markrhq/markr/internal/store/mock"
)

// recordingGateway captures messages instead of delivering them.
type recordingGateway struct {
	mu     sync.Mutex
	sent   map[string]string // phone -> message
	failOn string
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{sent: make(map[string]string)}
}

func (g *recordingGateway) Send(ctx context.Context, phone, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if phone == g.failOn {
		return errors.New("gateway rejected number")
	}
	g.sent[phone] = message
	return nil
}

type smsFixture struct {
	service    *Service
	gateway    *recordingGateway
	sms        *mock.MockSMSStore
	attendance *mock.MockAttendanceStore
}

func newSMSFixture(t *testing.T) *smsFixture {
	t.Helper()
	directory := mock.NewMockDirectoryStore()
	directory.AddDistrict(store.District{ID: 10, Name: "Riverside Unified"})
	directory.AddSchool(store.School{ID: 1, Name: "Lincoln Elementary", DistrictID: 10, Active: true})

	roster := mock.NewMockRosterStore()
	roster.AddStudent(store.Student{ID: 1, Name: "Amara Diallo", ClassName: "5A", SchoolID: 1, GuardianPhone: "+15550001", Active: true})
	roster.AddStudent(store.Student{ID: 2, Name: "Ben Okafor", ClassName: "5A", SchoolID: 1, GuardianPhone: "+15550002", Active: true})
	// Sibling of student 1: same guardian phone.
	roster.AddStudent(store.Student{ID: 3, Name: "Binta Diallo", ClassName: "6B", SchoolID: 1, GuardianPhone: "+15550001", Active: true})
	// No guardian phone on file.
	roster.AddStudent(store.Student{ID: 4, Name: "Chen Wei", ClassName: "6B", SchoolID: 1, Active: true})

	gateway := newRecordingGateway()
	sms := mock.NewMockSMSStore()
	attendance := mock.NewMockAttendanceStore()
	return &smsFixture{
		service:    NewService(sms, roster, attendance, directory, gateway),
		gateway:    gateway,
		sms:        sms,
		attendance: attendance,
	}
}

func smsPrincipal() access.Actor {
	return access.Actor{UserID: 8, Role: access.RolePrincipal, SchoolID: 1, Active: true}
}

func TestSendAllDeduplicatesGuardians(t *testing.T) {
	f := newSMSFixture(t)

	rec, err := f.service.Send(context.Background(), 1, RecipientsAll, "", "School closes early today.", smsPrincipal())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Four students, one missing a phone, two sharing one: 2 messages.
	if rec.RecipientCount != 2 {
		t.Errorf("expected 2 recipients, got %d", rec.RecipientCount)
	}
	if len(f.gateway.sent) != 2 {
		t.Errorf("expected 2 delivered messages, got %d", len(f.gateway.sent))
	}
	if _, ok := f.gateway.sent["+15550001"]; !ok {
		t.Error("shared guardian phone not messaged")
	}
}

func TestSendClass(t *testing.T) {
	f := newSMSFixture(t)

	rec, err := f.service.Send(context.Background(), 1, RecipientsClass, "5A", "Field trip tomorrow.", smsPrincipal())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if rec.RecipientCount != 2 {
		t.Errorf("expected 2 recipients, got %d", rec.RecipientCount)
	}
	if _, ok := f.gateway.sent["+15550002"]; !ok {
		t.Error("class guardian not messaged")
	}
	if rec.TargetClass != "5A" {
		t.Errorf("expected target class recorded, got %q", rec.TargetClass)
	}
}

func TestSendClassRequiresTarget(t *testing.T) {
	f := newSMSFixture(t)
	_, err := f.service.Send(context.Background(), 1, RecipientsClass, "", "msg", smsPrincipal())
	if err == nil {
		t.Fatal("expected error for missing target class")
	}
}

func TestSendAbsent(t *testing.T) {
	f := newSMSFixture(t)
	today := capture.DateOf(time.Now().UTC())
	f.attendance.AddRecord(store.AttendanceRecord{
		StudentID: 2, Date: today, Status: store.StatusAbsent,
		Method: store.MethodFaceRecognition, RecordedBy: 7,
	})
	// Present student must not trigger a message.
	f.attendance.AddRecord(store.AttendanceRecord{
		StudentID: 1, Date: today, Status: store.StatusPresent,
		Method: store.MethodFaceRecognition, RecordedBy: 7,
	})

	rec, err := f.service.Send(context.Background(), 1, RecipientsAbsent, "", "Your child was absent today.", smsPrincipal())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if rec.RecipientCount != 1 {
		t.Errorf("expected 1 recipient, got %d", rec.RecipientCount)
	}
	if _, ok := f.gateway.sent["+15550002"]; !ok {
		t.Error("absent student's guardian not messaged")
	}
	if _, ok := f.gateway.sent["+15550001"]; ok {
		t.Error("present student's guardian must not be messaged")
	}
}

func TestSendDeniedForTeacher(t *testing.T) {
	f := newSMSFixture(t)
	teacher := access.Actor{UserID: 7, Role: access.RoleTeacher, SchoolID: 1, Active: true}
	_, err := f.service.Send(context.Background(), 1, RecipientsAll, "", "msg", teacher)
	if !errors.Is(err, access.ErrInsufficientRole) {
		t.Errorf("expected ErrInsufficientRole, got %v", err)
	}
	if len(f.gateway.sent) != 0 {
		t.Error("denied send must deliver nothing")
	}
}

func TestSendCountsOnlyDelivered(t *testing.T) {
	f := newSMSFixture(t)
	f.gateway.failOn = "+15550001"

	rec, err := f.service.Send(context.Background(), 1, RecipientsAll, "", "msg", smsPrincipal())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if rec.RecipientCount != 1 {
		t.Errorf("expected 1 delivered, got %d", rec.RecipientCount)
	}
}

func TestHistory(t *testing.T) {
	f := newSMSFixture(t)
	ctx := context.Background()

	if _, err := f.service.Send(ctx, 1, RecipientsAll, "", "first", smsPrincipal()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := f.service.Send(ctx, 1, RecipientsClass, "5A", "second", smsPrincipal()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	history, err := f.service.History(ctx, 1, 10, smsPrincipal())
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(history))
	}
	if history[0].Message != "second" {
		t.Errorf("expected newest first, got %q", history[0].Message)
	}
}

func TestUnknownRecipientGroup(t *testing.T) {
	f := newSMSFixture(t)
	_, err := f.service.Send(context.Background(), 1, "everyone", "", "msg", smsPrincipal())
	if err == nil {
		t.Fatal("expected error for unknown recipient group")
	}
}

func TestSendRejectsOversizedMessage(t *testing.T) {
	f := newSMSFixture(t)
	long := strings.Repeat("a", 161)
	_, err := f.service.Send(context.Background(), 1, RecipientsAll, "", long, smsPrincipal())
	if err == nil {
		t.Fatal("expected error for message over 160 characters")
	}

	ok := strings.Repeat("a", 160)
	if _, err := f.service.Send(context.Background(), 1, RecipientsAll, "", ok, smsPrincipal()); err != nil {
		t.Fatalf("160-character message should be accepted: %v", err)
	}
}
