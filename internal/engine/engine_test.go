package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-bot/stagehand/internal/conversation"
	"github.com/stagehand-bot/stagehand/internal/db"
	"github.com/stagehand-bot/stagehand/internal/testutil"
)

const testPhone = "+15551230000"

func setupEngine(t *testing.T, opts ...Option) (*Engine, *conversation.Store, *testutil.Clock) {
	t.Helper()
	d, err := db.Open(db.Config{
		Engine: db.EngineSQLite,
		Target: filepath.Join(t.TempDir(), "test.db"),
		Mode:   db.ModeBlocking,
	})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Connect(context.Background()))

	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := conversation.NewStore(d, conversation.WithNow(clock.Now))

	opts = append([]Option{WithNow(clock.Now)}, opts...)
	return New(store, opts...), store, clock
}

func TestHandleMessage_FirstContact(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()

	resp, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)
	assert.Equal(t, TemplateUserTypeSelection, resp.Template)
	assert.Equal(t, testPhone, resp.Data["phone_number"])

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateUserTypeSelection, c.CurrentState)
	assert.Equal(t, []conversation.State{conversation.StateStart}, c.History)
}

func TestHandleMessage_UserTypeSelection(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)

	resp, err := e.HandleMessage(ctx, testPhone, "studio_head")
	require.NoError(t, err)
	assert.Equal(t, TemplateStudioHeadMenu, resp.Template)
	assert.Equal(t, "studio_head", resp.Data["user_type"])

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateStudioHeadMenu, c.CurrentState)
	assert.Equal(t, conversation.UserTypeStudioHead, c.UserType)
	assert.Equal(t,
		[]conversation.State{conversation.StateStart, conversation.StateUserTypeSelection},
		c.History)
}

func TestHandleMessage_InvalidUserType(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)

	resp, err := e.HandleMessage(ctx, testPhone, "choreographer")
	require.NoError(t, err)
	assert.Equal(t, TemplateInvalidUserType, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateUserTypeSelection, c.CurrentState, "invalid input must not move the machine")
	assert.Equal(t, conversation.UserTypeUnknown, c.UserType)
}

func TestHandleMessage_AdminHasNoMenu(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)

	resp, err := e.HandleMessage(ctx, testPhone, "admin")
	require.NoError(t, err)
	assert.Equal(t, TemplateInvalidUserType, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateUserTypeSelection, c.CurrentState)
}

func TestHandleMessage_StudioHeadMenu(t *testing.T) {
	tests := []struct {
		input    string
		state    conversation.State
		template string
	}{
		{"1", conversation.StateCompetitionRegistration, TemplateCompetitionRegistration},
		{"2", conversation.StateDancerRegistration, TemplateDancerRegistration},
		{"3", conversation.StateLicenseRenewal, TemplateLicenseRenewal},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e, store, _ := setupEngine(t)
			ctx := context.Background()
			walkToStudioHeadMenu(t, e)

			resp, err := e.HandleMessage(ctx, testPhone, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.template, resp.Template)

			c, err := store.Get(ctx, testPhone)
			require.NoError(t, err)
			assert.Equal(t, tt.state, c.CurrentState)
		})
	}
}

func TestHandleMessage_InvalidMenuOption(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()
	walkToStudioHeadMenu(t, e)

	resp, err := e.HandleMessage(ctx, testPhone, "9")
	require.NoError(t, err)
	assert.Equal(t, TemplateInvalidOption, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateStudioHeadMenu, c.CurrentState)
}

func TestHandleMessage_Back(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()
	walkToStudioHeadMenu(t, e)

	_, err := e.HandleMessage(ctx, testPhone, "1")
	require.NoError(t, err)

	resp, err := e.HandleMessage(ctx, testPhone, "BACK")
	require.NoError(t, err)
	assert.Equal(t, TemplateStudioHeadMenu, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateStudioHeadMenu, c.CurrentState)
	assert.Equal(t,
		[]conversation.State{conversation.StateStart, conversation.StateUserTypeSelection},
		c.History)
}

func TestHandleMessage_BackWithEmptyStack(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()

	// Fresh conversation: history is empty, so "back" falls through to the
	// start handler and advances normally.
	resp, err := e.HandleMessage(ctx, testPhone, "back")
	require.NoError(t, err)
	assert.Equal(t, TemplateUserTypeSelection, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateUserTypeSelection, c.CurrentState)
}

func TestHandleMessage_IdleTimeout(t *testing.T) {
	e, store, clock := setupEngine(t)
	ctx := context.Background()
	walkToStudioHeadMenu(t, e)

	clock.Advance(DefaultIdleTimeout + time.Minute)

	resp, err := e.HandleMessage(ctx, testPhone, "1")
	require.NoError(t, err)
	assert.Equal(t, TemplateTimeout, resp.Template, "timed-out message is not dispatched")

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateStart, c.CurrentState)
	assert.Empty(t, c.StateData)
	assert.Equal(t,
		[]conversation.State{conversation.StateStart, conversation.StateUserTypeSelection},
		c.History, "history survives a timeout reset")
}

func TestHandleMessage_NoTimeoutWithinThreshold(t *testing.T) {
	e, store, clock := setupEngine(t, WithTimeout(10*time.Minute))
	ctx := context.Background()

	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)

	resp, err := e.HandleMessage(ctx, testPhone, "dancer")
	require.NoError(t, err)
	assert.Equal(t, TemplateDancerMenu, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateDancerMenu, c.CurrentState)
}

func TestHandleMessage_UnknownState(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()
	walkToStudioHeadMenu(t, e)

	// competition_registration has no registered handler yet.
	_, err := e.HandleMessage(ctx, testPhone, "1")
	require.NoError(t, err)

	resp, err := e.HandleMessage(ctx, testPhone, "anything")
	require.NoError(t, err)
	assert.Equal(t, TemplateError, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateCompetitionRegistration, c.CurrentState, "unknown-state path must not mutate")
}

func TestHandleMessage_HandlerErrorRollsBack(t *testing.T) {
	boom := errors.New("downstream unavailable")
	failing := func(c *conversation.Conversation, input string, now time.Time) (Response, error) {
		c.Advance(conversation.StateEnd, now)
		c.StateData["poison"] = true
		return Response{}, boom
	}
	e, store, _ := setupEngine(t, WithHandler(conversation.StateUserTypeSelection, failing))
	ctx := context.Background()

	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)

	_, err = e.HandleMessage(ctx, testPhone, "studio_head")
	require.ErrorIs(t, err, boom)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateUserTypeSelection, c.CurrentState, "failed dispatch must roll back")
	assert.Empty(t, c.StateData)
	assert.Equal(t, []conversation.State{conversation.StateStart}, c.History)
}

func TestHandleMessage_InputCanonicalization(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)

	resp, err := e.HandleMessage(ctx, testPhone, "  Studio_Head \n")
	require.NoError(t, err)
	assert.Equal(t, TemplateStudioHeadMenu, resp.Template)

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.UserTypeStudioHead, c.UserType)
}

func TestHandleMessage_ConcurrentSamePhone(t *testing.T) {
	e, store, _ := setupEngine(t)
	ctx := context.Background()

	// Rapid double-send on first contact: both units of work serialize on
	// the per-number lock, so exactly one advances from start and the other
	// is handled in user_type_selection.
	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.HandleMessage(ctx, testPhone, "hello")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := store.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateUserTypeSelection, c.CurrentState)
	assert.Equal(t, []conversation.State{conversation.StateStart}, c.History,
		"concurrent units of work must not double-push history")
}

func TestHandleMessage_FixedTokens(t *testing.T) {
	e, _, _ := setupEngine(t, WithTokens(NewFixedGenerator("msg-1", "msg-2")))
	ctx := context.Background()

	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)
	_, err = e.HandleMessage(ctx, testPhone, "dancer")
	require.NoError(t, err)
}

func walkToStudioHeadMenu(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	_, err := e.HandleMessage(ctx, testPhone, "hello")
	require.NoError(t, err)
	_, err = e.HandleMessage(ctx, testPhone, "studio_head")
	require.NoError(t, err)
}
