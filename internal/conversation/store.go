package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/providers"
	"chat_gateway/internal/uistream"
)

// Store is the state container. Every mutation is a transform of the
// previous State applied under the lock, so concurrent callers see their
// mutations applied one at a time in the order they acquired it.
type Store struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates an empty store with the default provider and model.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: State{
			CurrentProvider: DefaultProvider,
			CurrentModel:    DefaultModel,
			APIKeys:         map[providers.ProviderID]string{},
		},
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// update applies fn to a copy of the state and commits it only when fn succeeds.
// fn must copy any conversation it modifies (see withConversation).
func (s *Store) update(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.Conversations = append([]Conversation(nil), s.state.Conversations...)
	next.APIKeys = maps.Clone(s.state.APIKeys)

	if err := fn(&next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func withConversation(st *State, id string, fn func(c *Conversation) error) error {
	for i := range st.Conversations {
		if st.Conversations[i].ID == id {
			c := st.Conversations[i].clone()
			if err := fn(&c); err != nil {
				return err
			}
			st.Conversations[i] = c
			return nil
		}
	}
	return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
}

func withMessage(c *Conversation, id string, fn func(m *Message) error) error {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return fn(&c.Messages[i])
		}
	}
	return fmt.Errorf("message %s: %w", id, ErrNotFound)
}

// Snapshot returns a copy of the current state that later mutations do not affect.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Conversations = make([]Conversation, len(s.state.Conversations))
	for i, c := range s.state.Conversations {
		st.Conversations[i] = c.clone()
	}
	st.APIKeys = maps.Clone(s.state.APIKeys)
	return st
}

// CreateConversation creates a conversation titled after its first user
// message, prepends it and makes it current. The message itself is not added.
func (s *Store) CreateConversation(modelID, firstMessage string) Conversation {
	now := s.now()
	c := Conversation{
		ID:        s.newID(),
		Title:     DeriveTitle(firstMessage),
		ModelID:   modelID,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.AddConversation(c)
	return c
}

// AddConversation prepends c and makes it current.
func (s *Store) AddConversation(c Conversation) {
	s.update(func(st *State) error {
		st.Conversations = append([]Conversation{c.clone()}, st.Conversations...)
		st.CurrentConversationID = c.ID
		return nil
	})
}

// SetCurrent selects the active conversation; "" starts a new chat.
func (s *Store) SetCurrent(id string) error {
	return s.update(func(st *State) error {
		if id != "" {
			if _, ok := st.Find(id); !ok {
				return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
			}
		}
		st.CurrentConversationID = id
		return nil
	})
}

// NewMessage builds a message with a fresh id and timestamp.
func (s *Store) NewMessage(role Role, content string) Message {
	return Message{ID: s.newID(), Role: role, Content: content, CreatedAt: s.now()}
}

// AddMessage appends msg and refreshes updatedAt. An untitled conversation
// takes its title from the first user message.
func (s *Store) AddMessage(conversationID string, msg Message) error {
	return s.update(func(st *State) error {
		return withConversation(st, conversationID, func(c *Conversation) error {
			for _, m := range c.Messages {
				if m.ID == msg.ID {
					return fmt.Errorf("message %s already exists", msg.ID)
				}
			}
			msg.ToolCalls = append([]ToolInvocation(nil), msg.ToolCalls...)
			c.Messages = append(c.Messages, msg)
			if c.Title == "" && msg.Role == RoleUser {
				c.Title = DeriveTitle(msg.Content)
			}
			c.UpdatedAt = s.now()
			return nil
		})
	})
}

// UpdateMessage replaces a message's content.
func (s *Store) UpdateMessage(conversationID, messageID, content string) error {
	return s.update(func(st *State) error {
		return withConversation(st, conversationID, func(c *Conversation) error {
			return withMessage(c, messageID, func(m *Message) error {
				m.Content = content
				return nil
			})
		})
	})
}

// AppendContent appends a streamed text delta to a message.
func (s *Store) AppendContent(conversationID, messageID, delta string) error {
	return s.update(func(st *State) error {
		return withConversation(st, conversationID, func(c *Conversation) error {
			return withMessage(c, messageID, func(m *Message) error {
				m.Content += delta
				return nil
			})
		})
	})
}

// AttachToolCall appends a tool invocation to a message.
func (s *Store) AttachToolCall(conversationID, messageID string, call ToolInvocation) error {
	return s.update(func(st *State) error {
		return withConversation(st, conversationID, func(c *Conversation) error {
			return withMessage(c, messageID, func(m *Message) error {
				m.ToolCalls = append(m.ToolCalls, call)
				return nil
			})
		})
	})
}

// AttachToolResult sets the result of a previously attached tool invocation.
func (s *Store) AttachToolResult(conversationID, messageID, callID string, result map[string]any) error {
	return s.update(func(st *State) error {
		return withConversation(st, conversationID, func(c *Conversation) error {
			return withMessage(c, messageID, func(m *Message) error {
				for i := range m.ToolCalls {
					if m.ToolCalls[i].ID == callID {
						m.ToolCalls[i].Result = result
						return nil
					}
				}
				return fmt.Errorf("tool call %s: %w", callID, ErrNotFound)
			})
		})
	})
}

// ApplyChunk folds one decoded stream chunk into an assistant message.
// Chunk types that carry no message content are ignored.
func (s *Store) ApplyChunk(conversationID, messageID string, chunk uistream.Chunk) error {
	switch chunk.Type {
	case uistream.TypeTextDelta:
		return s.AppendContent(conversationID, messageID, chunk.Delta)
	case uistream.TypeToolInputAvailable:
		args, _ := chunk.Input.(map[string]any)
		return s.AttachToolCall(conversationID, messageID, ToolInvocation{
			ID:        chunk.ToolCallID,
			ToolName:  chunk.ToolName,
			Arguments: args,
		})
	case uistream.TypeToolOutputAvailable:
		result, ok := chunk.Output.(map[string]any)
		if !ok {
			result = map[string]any{"value": chunk.Output}
		}
		return s.AttachToolResult(conversationID, messageID, chunk.ToolCallID, result)
	default:
		return nil
	}
}

// DeleteConversation removes a conversation, clearing the current selection
// when it pointed at it.
func (s *Store) DeleteConversation(id string) error {
	return s.update(func(st *State) error {
		kept := st.Conversations[:0]
		found := false
		for _, c := range st.Conversations {
			if c.ID == id {
				found = true
				continue
			}
			kept = append(kept, c)
		}
		if !found {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		st.Conversations = kept
		if st.CurrentConversationID == id {
			st.CurrentConversationID = ""
		}
		return nil
	})
}

// SetProvider selects the provider used for new turns.
func (s *Store) SetProvider(id providers.ProviderID) error {
	if _, err := providers.Lookup(id); err != nil {
		return err
	}
	return s.update(func(st *State) error {
		st.CurrentProvider = id
		return nil
	})
}

// SetModel selects the model used for new turns.
func (s *Store) SetModel(modelID string) error {
	return s.update(func(st *State) error {
		st.CurrentModel = modelID
		return nil
	})
}

// SetAPIKey stores encrypted key material for a provider.
func (s *Store) SetAPIKey(id providers.ProviderID, material string) error {
	if _, err := providers.Lookup(id); err != nil {
		return err
	}
	return s.update(func(st *State) error {
		if material == "" {
			delete(st.APIKeys, id)
		} else {
			st.APIKeys[id] = material
		}
		return nil
	})
}

// RemoveAPIKey forgets the key material of a provider.
func (s *Store) RemoveAPIKey(id providers.ProviderID) {
	s.update(func(st *State) error {
		delete(st.APIKeys, id)
		return nil
	})
}

// Persisted returns the durable slice of the state.
func (s *Store) Persisted() Persisted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Persisted{
		APIKeys:         maps.Clone(s.state.APIKeys),
		CurrentProvider: s.state.CurrentProvider,
		CurrentModel:    s.state.CurrentModel,
	}
}

// Restore replaces the durable slice of the state. Unknown providers are dropped.
func (s *Store) Restore(p Persisted) {
	s.update(func(st *State) error {
		st.APIKeys = map[providers.ProviderID]string{}
		for id, material := range p.APIKeys {
			if _, err := providers.Lookup(id); err == nil && material != "" {
				st.APIKeys[id] = material
			}
		}
		if _, err := providers.Lookup(p.CurrentProvider); err == nil {
			st.CurrentProvider = p.CurrentProvider
		}
		if p.CurrentModel != "" {
			st.CurrentModel = p.CurrentModel
		}
		return nil
	})
}

// StorageKey is the key the snapshot is saved under.
const StorageKey = "chat-storage"

// Save writes the durable slice of the state to kv.
func (s *Store) Save(ctx context.Context, kv KV) error {
	data, err := json.Marshal(s.Persisted())
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := kv.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load restores the durable slice of the state from kv. A missing snapshot
// leaves the defaults in place.
func (s *Store) Load(ctx context.Context, kv KV) error {
	data, found, err := kv.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if !found {
		return nil
	}

	var p Persisted
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	s.Restore(p)
	return nil
}
