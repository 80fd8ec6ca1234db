// Package engine drives the conversation state machine.
//
// Each inbound (phone number, text) pair is one unit of work: resolve the
// conversation, check "back" navigation, check the idle timeout, dispatch to
// the handler for the current state, and commit the resulting mutation
// exactly once. The commit happens inside a single transaction that also
// covers get-or-create for first-contact messages, and units of work for the
// same phone number serialize on a per-number lock, so a read-modify-commit
// cycle never loses a concurrent update.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/stagehand-bot/stagehand/internal/conversation"
)

// DefaultIdleTimeout is how long a conversation may sit idle before the next
// message resets it to the start state.
const DefaultIdleTimeout = 30 * time.Minute

// backCommand pops the history stack instead of dispatching to a handler.
// Matched case-insensitively.
const backCommand = "back"

// Engine is the conversation state machine.
type Engine struct {
	store    *conversation.Store
	handlers map[conversation.State]HandlerFunc
	timeout  time.Duration
	now      func() time.Time
	tokens   TokenGenerator
	locks    keyedMutex
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the idle timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithNow overrides the engine's clock. Used by tests and the scenario
// harness.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTokens overrides the message token generator.
func WithTokens(gen TokenGenerator) Option {
	return func(e *Engine) {
		e.tokens = gen
	}
}

// WithHandler registers or replaces the handler for a state.
func WithHandler(state conversation.State, fn HandlerFunc) Option {
	return func(e *Engine) {
		e.handlers[state] = fn
	}
}

// WithLogger overrides the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates an Engine over the given store with the default handler set.
func New(store *conversation.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		handlers: defaultHandlers(),
		timeout:  DefaultIdleTimeout,
		now:      time.Now,
		tokens:   UUIDv7Generator{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage processes one inbound message and returns the response
// descriptor for the delivery collaborator.
//
// Error behavior follows a strict split: infrastructure failures (backend
// unreachable, transaction failure) propagate to the caller; conversation-
// level failures (no handler for the current state, unrecognized input) are
// recovered locally into error descriptors and never surface as Go errors.
func (e *Engine) HandleMessage(ctx context.Context, phoneNumber, text string) (Response, error) {
	unlock := e.locks.lock(phoneNumber)
	defer unlock()

	token := e.tokens.Generate()
	input := canonicalize(text)

	var resp Response
	_, err := e.store.Update(ctx, phoneNumber, func(c *conversation.Conversation) error {
		r, err := e.step(c, input)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		var use *UnknownStateError
		if errors.As(err, &use) {
			// Recovered locally: the rollback already dropped any
			// mutation, the caller gets a generic error descriptor.
			e.log.Warn("no handler for state",
				"token", token, "phone_number", phoneNumber, "state", string(use.State))
			return errorResponse(phoneNumber), nil
		}
		return Response{}, err
	}

	e.log.Debug("message handled",
		"token", token, "phone_number", phoneNumber, "template", resp.Template)
	return resp, nil
}

// step applies the state-machine rules to one message. It mutates c and
// returns the response descriptor; the caller owns the commit.
func (e *Engine) step(c *conversation.Conversation, input string) (Response, error) {
	now := e.now()

	// "back" replays the history stack. An empty stack falls through to
	// normal handling of the unchanged current state.
	if strings.EqualFold(input, backCommand) {
		if _, ok := c.GoBack(now); ok {
			return stateResponse(c), nil
		}
	}

	if e.timedOut(c, now) {
		c.Reset(now)
		return Response{
			Template: TemplateTimeout,
			Data:     map[string]any{"phone_number": c.PhoneNumber},
		}, nil
	}

	handler, ok := e.handlers[c.CurrentState]
	if !ok {
		return Response{}, &UnknownStateError{State: c.CurrentState}
	}
	return handler(c, input, now)
}

func (e *Engine) timedOut(c *conversation.Conversation, now time.Time) bool {
	if c.LastInteraction.IsZero() {
		return false
	}
	return now.Sub(c.LastInteraction) > e.timeout
}

// canonicalize normalizes inbound text to NFC and strips surrounding
// whitespace, so option matching is stable across clients that compose
// characters differently.
func canonicalize(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}
