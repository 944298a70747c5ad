package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"chat_gateway/internal/storage"
	"chat_gateway/internal/utils"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 200
)

// ConversationResponse is a stored conversation with its transcript.
type ConversationResponse struct {
	storage.Conversation
	Messages []storage.Message `json:"messages"`
}

// handleListConversations handles GET /api/conversations?limit=N, most
// recently updated first.
func (d *Dependencies) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxConversationLimit)
	}

	conversations, err := d.Transcripts.ListConversations(r.Context(), limit)
	if err != nil {
		d.Logger.Error("failed to list conversations", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []storage.Conversation{}
	}
	utils.RespondWithJSON(w, http.StatusOK, conversations)
}

// handleGetConversation handles GET /api/conversations/{id}
func (d *Dependencies) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := d.Transcripts.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		d.Logger.Error("failed to get conversation", "conversation_id", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}

	messages, err := d.Transcripts.ListMessages(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to list messages", "conversation_id", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}
	if messages == nil {
		messages = []storage.Message{}
	}

	utils.RespondWithJSON(w, http.StatusOK, ConversationResponse{Conversation: *conv, Messages: messages})
}

// handleDeleteConversation handles DELETE /api/conversations/{id}
func (d *Dependencies) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := d.Transcripts.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		d.Logger.Error("failed to delete conversation", "conversation_id", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
