// Package client runs chat turns against the gateway on behalf of a
// Conversation Store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chat_gateway/internal/conversation"
	"chat_gateway/internal/gateway"
	"chat_gateway/internal/providers"
	"chat_gateway/internal/uistream"
	"chat_gateway/internal/utils"
)

const maxErrorBody = 64 * 1024

// Turn is the per-send configuration. It is rebuilt from the store for every
// send so that a provider, model or key change applies to the next message.
type Turn struct {
	Provider        providers.ProviderID
	Model           string
	EncryptedAPIKey string
	ConversationID  string
}

// TurnFromState builds a Turn from a store snapshot.
func TurnFromState(st conversation.State) Turn {
	return Turn{
		Provider:        st.CurrentProvider,
		Model:           st.CurrentModel,
		EncryptedAPIKey: st.APIKeys[st.CurrentProvider],
		ConversationID:  st.CurrentConversationID,
	}
}

// Client posts transcripts to /api/chat.
type Client struct {
	// OnChunk, when set, sees every decoded chunk as it arrives.
	OnChunk func(uistream.Chunk)

	baseURL    string
	httpClient *http.Client
	logger     *utils.Logger
}

// New creates a client for the gateway at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     utils.NewLogger("client"),
	}
}

// Send appends text as a user message, creating and activating a
// conversation when none is selected, then streams the reply into the store.
// It returns the assistant message as far as it got.
func (c *Client) Send(ctx context.Context, store *conversation.Store, turn Turn, text string) (conversation.Message, error) {
	if turn.EncryptedAPIKey == "" && turn.Provider != providers.Google {
		return conversation.Message{}, &MissingKeyError{Provider: turn.Provider}
	}

	convID := turn.ConversationID
	if convID == "" {
		convID = store.CreateConversation(turn.Model, text).ID
	} else if err := store.SetCurrent(convID); err != nil {
		return conversation.Message{}, err
	}

	user := store.NewMessage(conversation.RoleUser, text)
	if err := store.AddMessage(convID, user); err != nil {
		return conversation.Message{}, err
	}

	conv, ok := store.Snapshot().Find(convID)
	if !ok {
		return conversation.Message{}, fmt.Errorf("conversation %s: %w", convID, conversation.ErrNotFound)
	}

	body, err := json.Marshal(gateway.ChatRequest{
		Messages:        ToUIMessages(conv.Messages),
		Model:           turn.Model,
		Provider:        string(turn.Provider),
		EncryptedAPIKey: turn.EncryptedAPIKey,
		ConversationID:  convID,
	})
	if err != nil {
		return conversation.Message{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return conversation.Message{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return conversation.Message{}, decodeAPIError(resp)
	}

	return c.consume(store, convID, uistream.NewDecoder(resp.Body))
}

// consume applies chunks to a new assistant message until the stream ends.
func (c *Client) consume(store *conversation.Store, convID string, dec *uistream.Decoder) (conversation.Message, error) {
	var (
		msgID     string
		streamErr error
	)

	ensure := func(id string) error {
		if msgID != "" {
			return nil
		}
		msg := store.NewMessage(conversation.RoleAssistant, "")
		if id != "" {
			msg.ID = id
		}
		msgID = msg.ID
		return store.AddMessage(convID, msg)
	}

	for {
		chunk, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.assistant(store, convID, msgID), fmt.Errorf("failed to read stream: %w", err)
		}
		if c.OnChunk != nil {
			c.OnChunk(chunk)
		}

		switch chunk.Type {
		case uistream.TypeStart:
			if err := ensure(chunk.MessageID); err != nil {
				return conversation.Message{}, err
			}
		case uistream.TypeError:
			streamErr = &StreamError{Text: chunk.ErrorText}
			c.logger.Warn("stream reported an error", "conversation_id", convID)
		default:
			if err := ensure(""); err != nil {
				return conversation.Message{}, err
			}
			if err := store.ApplyChunk(convID, msgID, chunk); err != nil {
				return c.assistant(store, convID, msgID), err
			}
		}
	}

	return c.assistant(store, convID, msgID), streamErr
}

func (c *Client) assistant(store *conversation.Store, convID, msgID string) conversation.Message {
	if msgID == "" {
		return conversation.Message{}
	}
	conv, ok := store.Snapshot().Find(convID)
	if !ok {
		return conversation.Message{}
	}
	for _, m := range conv.Messages {
		if m.ID == msgID {
			return m
		}
	}
	return conversation.Message{}
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body utils.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
