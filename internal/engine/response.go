package engine

import "github.com/stagehand-bot/stagehand/internal/conversation"

// Response is the descriptor handed to the delivery collaborator: a template
// name plus the data needed to render it. The engine never knows how the
// template reaches the user.
type Response struct {
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// stateResponse builds the canonical descriptor for a conversation's current
// state.
func stateResponse(c *conversation.Conversation) Response {
	return Response{
		Template: TemplateFor(c.CurrentState),
		Data: map[string]any{
			"phone_number": c.PhoneNumber,
			"user_type":    string(c.UserType),
			"state_data":   c.StateData,
		},
	}
}

// errorResponse is the generic fallback descriptor for unrecoverable
// per-message conditions, such as a state with no registered handler.
func errorResponse(phoneNumber string) Response {
	return Response{
		Template: TemplateError,
		Data:     map[string]any{"phone_number": phoneNumber},
	}
}

func invalidResponse(template string, c *conversation.Conversation) Response {
	return Response{
		Template: template,
		Data:     map[string]any{"phone_number": c.PhoneNumber},
	}
}
