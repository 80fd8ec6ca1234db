// Package conversation defines the per-phone-number conversation record and
// its typed persistence operations.
//
// A Conversation tracks where one phone number is in the menu state machine:
// the current state, scratch data scoped to that state, and a LIFO history
// of previously visited states that backs "back" navigation.
package conversation

import "time"

// State names a point in the conversation state machine.
type State string

const (
	StateStart                   State = "start"
	StateUserTypeSelection       State = "user_type_selection"
	StateStudioHeadMenu          State = "studio_head_menu"
	StateParentMenu              State = "parent_menu"
	StateDancerMenu              State = "dancer_menu"
	StateCompetitionRegistration State = "competition_registration"
	StateDancerRegistration      State = "dancer_registration"
	StateLicenseRenewal          State = "license_renewal"
	StateEnd                     State = "end"
)

// AllStates is the closed set of machine states. StateStart is the sole
// initial state; StateEnd is terminal.
var AllStates = []State{
	StateStart,
	StateUserTypeSelection,
	StateStudioHeadMenu,
	StateParentMenu,
	StateDancerMenu,
	StateCompetitionRegistration,
	StateDancerRegistration,
	StateLicenseRenewal,
	StateEnd,
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

// UserType classifies who is on the other end of the conversation.
type UserType string

const (
	UserTypeStudioHead UserType = "studio_head"
	UserTypeParent     UserType = "parent"
	UserTypeDancer     UserType = "dancer"
	UserTypeAdmin      UserType = "admin"
	UserTypeUnknown    UserType = "unknown"
)

// ParseUserType maps a raw token to a UserType. The token must already be
// lowercased by the caller.
func ParseUserType(s string) (UserType, bool) {
	switch UserType(s) {
	case UserTypeStudioHead, UserTypeParent, UserTypeDancer, UserTypeAdmin, UserTypeUnknown:
		return UserType(s), true
	}
	return UserTypeUnknown, false
}

// User is the owning account for one or more conversations. Created lazily
// the first time a phone number is seen.
type User struct {
	ID     int64
	Role   UserType
	Number string
}

// Conversation is the durable record of one multi-turn exchange, keyed
// uniquely by phone number.
type Conversation struct {
	ID              int64
	PhoneNumber     string
	UserType        UserType
	CurrentState    State
	StateData       map[string]any
	History         []State
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastInteraction time.Time
	UserID          int64
}

// Advance moves the conversation to next, pushing the prior state onto the
// history stack. A transition to the current state is a no-op: nothing is
// pushed and no timestamps move.
func (c *Conversation) Advance(next State, now time.Time) {
	if c.CurrentState == next {
		return
	}
	c.History = append(c.History, c.CurrentState)
	c.CurrentState = next
	c.touch(now)
}

// GoBack pops the most recently pushed state and makes it current. It
// replays the states visited in arrival order, it does not walk a menu
// hierarchy. Returns false when the stack is empty, leaving the
// conversation untouched.
func (c *Conversation) GoBack(now time.Time) (State, bool) {
	if len(c.History) == 0 {
		return "", false
	}
	prev := c.History[len(c.History)-1]
	c.History = c.History[:len(c.History)-1]
	c.CurrentState = prev
	c.touch(now)
	return prev, true
}

// Reset returns the conversation to the start state and clears the scratch
// data. History survives a reset, so "back" still replays states visited
// before the idle gap.
func (c *Conversation) Reset(now time.Time) {
	c.CurrentState = StateStart
	c.StateData = map[string]any{}
	c.touch(now)
}

func (c *Conversation) touch(now time.Time) {
	c.LastInteraction = now
	c.UpdatedAt = now
}
