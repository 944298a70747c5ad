package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/conversation"
	"chat_gateway/internal/gateway"
	"chat_gateway/internal/logging"
	"chat_gateway/internal/middleware"
	"chat_gateway/internal/storage"
	"chat_gateway/internal/uistream"
	"chat_gateway/internal/utils"
)

// ChatFailedMessage is the body text for any failure that is neither a
// validation nor a credential problem.
const ChatFailedMessage = "Failed to process chat request"

const persistTimeout = 10 * time.Second

// handleChat is the entry point for streamed chat generations.
//
// Flow:
//  1. Decode the JSON body
//  2. Validate, resolve the API key and build the model (no upstream call)
//  3. Run the session, relaying the UI message stream
//  4. Persist the turn when a conversation id and database are present
//  5. Hand a chat record to the sink
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	rec := &logging.ChatRecord{
		Timestamp: start.UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	defer func() {
		rec.LatencyMs = time.Since(start).Milliseconds()
		// The record outlives a cancelled request.
		if err := d.Sink.Enqueue(context.WithoutCancel(ctx), rec); err != nil {
			d.Logger.Warn("failed to enqueue chat record", "request_id", rec.RequestID, "error", err)
		}
	}()

	var req gateway.ChatRequest
	if err := utils.DecodeJSONBody(r, &req, d.MaxBodyBytes); err != nil {
		d.Logger.Debug("rejected chat body", "request_id", rec.RequestID, "error", err)
		d.reject(w, rec, http.StatusBadRequest, gateway.MissingParamsMessage, "")
		return
	}
	rec.Provider = req.Provider
	rec.Model = req.Model
	rec.ConversationID = req.ConversationID

	session, err := d.Gateway.Prepare(&req)
	if err != nil {
		d.respondPrepareError(w, rec, err)
		return
	}

	out, err := uistream.NewWriter(w, session.ID)
	if err != nil {
		d.reject(w, rec, http.StatusInternalServerError, ChatFailedMessage, err.Error())
		return
	}

	res, err := session.Run(ctx, out)
	rec.Steps = res.Steps
	for _, call := range res.ToolCalls {
		rec.ToolCalls = append(rec.ToolCalls, call.ToolName)
	}
	if err != nil {
		d.Logger.Error("chat request failed before streaming",
			"request_id", rec.RequestID, "provider", req.Provider, "model", req.Model, "error", err)
		rec.Status = logging.StatusFailed
		rec.HTTPStatus = http.StatusInternalServerError
		rec.Error = err.Error()
		utils.RespondWithErrorDetails(w, http.StatusInternalServerError, ChatFailedMessage, err.Error())
		return
	}

	rec.HTTPStatus = http.StatusOK
	switch res.Status {
	case gateway.StatusCancelled:
		rec.Status = logging.StatusCancelled
		d.Logger.Info("chat request cancelled", "request_id", rec.RequestID, "steps", res.Steps)
		return
	case gateway.StatusFailed:
		rec.Status = logging.StatusFailed
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		d.Logger.Warn("chat stream failed", "request_id", rec.RequestID, "steps", res.Steps, "error", rec.Error)
		return
	}

	rec.Status = logging.StatusCompleted
	if req.ConversationID != "" && d.Transcripts != nil {
		if err := d.saveTurn(ctx, &req, session, res); err != nil {
			d.Logger.Error("failed to persist turn",
				"request_id", rec.RequestID, "conversation_id", req.ConversationID, "error", err)
		}
	}
}

// reject answers with a JSON error and records the outcome.
func (d *Dependencies) reject(w http.ResponseWriter, rec *logging.ChatRecord, code int, message, details string) {
	rec.Status = logging.StatusRejected
	rec.HTTPStatus = code
	rec.Error = message
	if details != "" {
		rec.Error = details
	}
	utils.RespondWithErrorDetails(w, code, message, details)
}

func (d *Dependencies) respondPrepareError(w http.ResponseWriter, rec *logging.ChatRecord, err error) {
	var (
		validationErr *gateway.ValidationError
		credentialErr *gateway.CredentialError
	)
	switch {
	case errors.As(err, &validationErr):
		d.reject(w, rec, http.StatusBadRequest, validationErr.Error(), "")
	case errors.As(err, &credentialErr):
		d.reject(w, rec, http.StatusUnauthorized, credentialErr.Error(), "")
	default:
		d.Logger.Error("failed to prepare chat session", "request_id", rec.RequestID, "error", err)
		d.reject(w, rec, http.StatusInternalServerError, ChatFailedMessage, err.Error())
	}
}

// saveTurn stores the last user message and the assistant reply. The user
// message id from the UI is reused so that resending a transcript does not
// duplicate it.
func (d *Dependencies) saveTurn(ctx context.Context, req *gateway.ChatRequest, session *gateway.Session, res *gateway.Result) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := time.Now().UTC()
	turn := storage.Turn{
		ConversationID: req.ConversationID,
		Title:          conversation.DeriveTitle(req.FirstUserText()),
		ModelID:        req.Model,
		Provider:       string(session.Provider),
		At:             now,
	}

	if user, ok := req.LastUserMessage(); ok {
		id := user.ID
		if id == "" {
			id = uuid.NewString()
		}
		turn.Messages = append(turn.Messages, storage.Message{
			ID:        id,
			Role:      string(conversation.RoleUser),
			Content:   user.Text(),
			CreatedAt: now,
		})
	}

	assistant := storage.Message{
		ID:        session.ID,
		Role:      string(conversation.RoleAssistant),
		Content:   res.Text,
		CreatedAt: now.Add(time.Millisecond),
	}
	for _, call := range res.ToolCalls {
		assistant.ToolInvocations = append(assistant.ToolInvocations, storage.ToolInvocation{
			ID:        call.ID,
			ToolName:  call.ToolName,
			Arguments: storage.JSONMap(call.Arguments),
			Result:    storage.JSONMap(call.Result),
		})
	}
	turn.Messages = append(turn.Messages, assistant)

	return d.Transcripts.SaveTurn(ctx, turn)
}
