package engine

import (
	"strings"
	"time"

	"github.com/stagehand-bot/stagehand/internal/conversation"
)

// HandlerFunc processes the message for one state. Handlers are pure
// functions of the conversation snapshot and the input: they mutate the
// snapshot and return the descriptor, the engine owns persistence. A handler
// that does not recognize the input returns a rejection descriptor and
// leaves the snapshot untouched.
type HandlerFunc func(c *conversation.Conversation, input string, now time.Time) (Response, error)

// defaultHandlers is the production handler table. States without an entry
// (menus still under construction, the terminal end state) take the
// unknown-state path.
func defaultHandlers() map[conversation.State]HandlerFunc {
	return map[conversation.State]HandlerFunc{
		conversation.StateStart:             handleStart,
		conversation.StateUserTypeSelection: handleUserTypeSelection,
		conversation.StateStudioHeadMenu:    handleStudioHeadMenu,
	}
}

// handleStart greets any first message by moving to user-type selection.
func handleStart(c *conversation.Conversation, _ string, now time.Time) (Response, error) {
	c.Advance(conversation.StateUserTypeSelection, now)
	return stateResponse(c), nil
}

// userTypeMenus maps a selected user type to its menu state. Only types
// with a menu are selectable; admin and unknown are rejected like any other
// unrecognized token.
var userTypeMenus = map[conversation.UserType]conversation.State{
	conversation.UserTypeStudioHead: conversation.StateStudioHeadMenu,
	conversation.UserTypeParent:     conversation.StateParentMenu,
	conversation.UserTypeDancer:     conversation.StateDancerMenu,
}

func handleUserTypeSelection(c *conversation.Conversation, input string, now time.Time) (Response, error) {
	userType, ok := conversation.ParseUserType(strings.ToLower(input))
	if ok {
		if next, hasMenu := userTypeMenus[userType]; hasMenu {
			c.UserType = userType
			c.Advance(next, now)
			return stateResponse(c), nil
		}
	}
	return invalidResponse(TemplateInvalidUserType, c), nil
}

// studioHeadOptions is the numbered menu presented to studio heads.
var studioHeadOptions = map[string]conversation.State{
	"1": conversation.StateCompetitionRegistration,
	"2": conversation.StateDancerRegistration,
	"3": conversation.StateLicenseRenewal,
}

func handleStudioHeadMenu(c *conversation.Conversation, input string, now time.Time) (Response, error) {
	if next, ok := studioHeadOptions[input]; ok {
		c.Advance(next, now)
		return stateResponse(c), nil
	}
	return invalidResponse(TemplateInvalidOption, c), nil
}
