// Package notify sends guardian SMS notifications and keeps their history.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/markrhq/markr/internal/access"
	"github.com/markrhq/markr/internal/capture"
	"github.com/markrhq/markr/internal/store"
)

// Recipient group selectors.
const (
	RecipientsAll    = "all"
	RecipientsClass  = "class"
	RecipientsAbsent = "absent"
)

// maxMessageLength is the single-segment SMS limit.
const maxMessageLength = 160

// Gateway delivers one SMS message. Implementations must be safe for
// concurrent use.
type Gateway interface {
	Send(ctx context.Context, phone, message string) error
}

// LogGateway writes messages to the process log instead of delivering
// them. Used when no SMS gateway is configured.
type LogGateway struct{}

func (LogGateway) Send(ctx context.Context, phone, message string) error {
	log.Printf("sms (log only) to %s: %s", phone, message)
	return nil
}

// HTTPGateway posts messages to an external SMS gateway endpoint.
type HTTPGateway struct {
	url      string
	senderID string
	client   *http.Client
}

// NewHTTPGateway creates a gateway client for the given endpoint.
func NewHTTPGateway(url, senderID string) *HTTPGateway {
	return &HTTPGateway{
		url:      url,
		senderID: senderID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HTTPGateway) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"to":        phone,
		"message":   message,
		"sender_id": g.senderID,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// Service resolves recipient groups, delivers messages, and records history.
type Service struct {
	sms        store.SMSStore
	roster     store.RosterStore
	attendance store.AttendanceStore
	directory  store.DirectoryStore
	gateway    Gateway
}

// NewService creates a notification service. A nil gateway falls back to
// log-only delivery.
func NewService(sms store.SMSStore, roster store.RosterStore, attendance store.AttendanceStore, directory store.DirectoryStore, gateway Gateway) *Service {
	if gateway == nil {
		gateway = LogGateway{}
	}
	return &Service{sms: sms, roster: roster, attendance: attendance, directory: directory, gateway: gateway}
}

// Send delivers the message to the selected guardian group and records the
// batch. Recipients is one of all, class, or absent; absent means students
// with an explicit absent record today. Students without a guardian phone
// are skipped. Returns the saved history record.
func (s *Service) Send(ctx context.Context, schoolID int64, recipients, targetClass, message string, actor access.Actor) (*store.SMSRecord, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if len([]rune(message)) > maxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters", maxMessageLength)
	}

	school, err := s.directory.SchoolByID(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("resolving school %d: %w", schoolID, err)
	}
	scope := access.Scope{SchoolID: school.ID, SchoolDistrictID: school.DistrictID}
	if err := access.Authorize(actor, access.ActionSendSMS, scope); err != nil {
		return nil, err
	}

	students, err := s.resolveRecipients(ctx, schoolID, recipients, targetClass)
	if err != nil {
		return nil, err
	}

	phones := guardianPhones(students)
	sent := 0
	for _, phone := range phones {
		if err := s.gateway.Send(ctx, phone, message); err != nil {
			log.Printf("sms to %s failed: %v", phone, err)
			continue
		}
		sent++
	}

	rec := &store.SMSRecord{
		SchoolID:       schoolID,
		Recipients:     recipients,
		TargetClass:    targetClass,
		Message:        message,
		RecipientCount: sent,
		SentBy:         actor.UserID,
	}
	if err := s.sms.SaveSMS(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording sms batch: %w", err)
	}
	return rec, nil
}

// History returns recent notification batches for a school.
func (s *Service) History(ctx context.Context, schoolID int64, limit int, actor access.Actor) ([]store.SMSRecord, error) {
	school, err := s.directory.SchoolByID(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("resolving school %d: %w", schoolID, err)
	}
	scope := access.Scope{SchoolID: school.ID, SchoolDistrictID: school.DistrictID}
	if err := access.Authorize(actor, access.ActionReadSMSHistory, scope); err != nil {
		return nil, err
	}
	return s.sms.SMSHistory(ctx, schoolID, limit)
}

func (s *Service) resolveRecipients(ctx context.Context, schoolID int64, recipients, targetClass string) ([]store.Student, error) {
	switch recipients {
	case RecipientsAll:
		students, err := s.roster.SearchStudents(ctx, schoolID, "")
		if err != nil {
			return nil, fmt.Errorf("loading school roster: %w", err)
		}
		return students, nil

	case RecipientsClass:
		if targetClass == "" {
			return nil, fmt.Errorf("target class is required for class recipients")
		}
		students, err := s.roster.ActiveStudents(ctx, targetClass, schoolID)
		if err != nil {
			return nil, fmt.Errorf("loading class roster: %w", err)
		}
		return students, nil

	case RecipientsAbsent:
		today := capture.DateOf(time.Now().UTC())
		ids, err := s.attendance.AbsentStudentIDs(ctx, schoolID, today)
		if err != nil {
			return nil, fmt.Errorf("loading absent students: %w", err)
		}
		var students []store.Student
		for _, id := range ids {
			student, err := s.roster.StudentByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("resolving student %d: %w", id, err)
			}
			students = append(students, *student)
		}
		return students, nil

	default:
		return nil, fmt.Errorf("unknown recipient group %q", recipients)
	}
}

// guardianPhones deduplicates guardian numbers; siblings share one phone
// and their guardian gets one message.
func guardianPhones(students []store.Student) []string {
	seen := make(map[string]bool)
	var phones []string
	for _, s := range students {
		if s.GuardianPhone == "" || seen[s.GuardianPhone] {
			continue
		}
		seen[s.GuardianPhone] = true
		phones = append(phones, s.GuardianPhone)
	}
	sort.Strings(phones)
	return phones
}
