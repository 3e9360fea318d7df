package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/markrhq/markr/internal/assistant"
)

// AssistantHandler handles the built-in help assistant endpoint.
type AssistantHandler struct {
	provider assistant.Provider
}

// NewAssistantHandler creates a new assistant handler. provider may be
// nil when no assistant is configured.
func NewAssistantHandler(provider assistant.Provider) *AssistantHandler {
	return &AssistantHandler{provider: provider}
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer   string `json:"answer"`
	Provider string `json:"provider"`
}

// Chat answers a user question about the system.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	if h.provider == nil {
		respondError(w, http.StatusServiceUnavailable, "assistant is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := h.provider.Answer(r.Context(), req.Question)
	if err != nil {
		respondError(w, http.StatusBadGateway, "assistant request failed")
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{
		Answer:   answer,
		Provider: h.provider.Name(),
	})
}
