package engine

import (
	"fmt"

	"github.com/stagehand-bot/stagehand/internal/conversation"
)

// UnknownStateError reports a conversation whose current state has no
// registered handler. The engine recovers it locally into a generic error
// descriptor; the transaction it aborts guarantees the conversation is left
// unmodified.
type UnknownStateError struct {
	State conversation.State
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("no handler registered for state %q", e.State)
}
