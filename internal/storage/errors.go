package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the base error for missing rows
	ErrNotFound = errors.New("not found")

	// ErrConversationNotFound is returned when a conversation is not found
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)
)
