package middleware

import (
	"errors"
	"unicode/utf8"
)

// ValidateConversationID validates a conversation id. Ids are opaque
// strings assigned by the platform backend, not UUIDs.
func ValidateConversationID(id string) error {
	if len(id) == 0 {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("conversation ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("conversation ID must be valid UTF-8")
	}
	return nil
}

// ValidateAgentID validates an agent id.
func ValidateAgentID(id string) error {
	if len(id) == 0 {
		return errors.New("agent ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("agent ID exceeds maximum length")
	}
	return nil
}
