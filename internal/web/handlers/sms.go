package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/markrhq/markr/internal/notify"
	"github.com/markrhq/markr/internal/store"
)

// SMSHandler handles guardian notification endpoints.
type SMSHandler struct {
	notify *notify.Service
}

// NewSMSHandler creates a new SMS handler.
func NewSMSHandler(service *notify.Service) *SMSHandler {
	return &SMSHandler{notify: service}
}

type sendSMSRequest struct {
	SchoolID    int64  `json:"school_id"`
	Recipients  string `json:"recipients"`
	TargetClass string `json:"target_class"`
	Message     string `json:"message"`
}

// smsView is the JSON shape of a sent notification batch.
type smsView struct {
	ID             int64  `json:"id"`
	SchoolID       int64  `json:"school_id"`
	Recipients     string `json:"recipients"`
	TargetClass    string `json:"target_class,omitempty"`
	Message        string `json:"message"`
	RecipientCount int    `json:"recipient_count"`
	SentBy         int64  `json:"sent_by"`
	SentAt         string `json:"sent_at"`
}

func viewSMS(rec *store.SMSRecord) smsView {
	return smsView{
		ID:             rec.ID,
		SchoolID:       rec.SchoolID,
		Recipients:     rec.Recipients,
		TargetClass:    rec.TargetClass,
		Message:        rec.Message,
		RecipientCount: rec.RecipientCount,
		SentBy:         rec.SentBy,
		SentAt:         rec.SentAt.Format(time.RFC3339),
	}
}

// Send dispatches a notification batch to guardian phones.
func (h *SMSHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req sendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SchoolID == 0 || req.Message == "" {
		respondError(w, http.StatusBadRequest, "school_id and message are required")
		return
	}
	switch req.Recipients {
	case notify.RecipientsAll, notify.RecipientsClass, notify.RecipientsAbsent:
	default:
		respondError(w, http.StatusBadRequest, "recipients must be all, class, or absent")
		return
	}
	if req.Recipients == notify.RecipientsClass && req.TargetClass == "" {
		respondError(w, http.StatusBadRequest, "target_class is required for class recipients")
		return
	}

	record, err := h.notify.Send(r.Context(), req.SchoolID, req.Recipients, req.TargetClass, req.Message, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewSMS(record))
}

// History returns the school's recent notification batches, newest first.
// GET /sms/history?school_id=1&limit=20
func (h *SMSHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	schoolID, err := queryInt64(r, "school_id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "school_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.notify.History(r.Context(), schoolID, limit, actor)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	views := make([]smsView, 0, len(history))
	for i := range history {
		views = append(views, viewSMS(&history[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"messages": views,
		"count":    len(views),
	})
}
