package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stagehand-bot/stagehand/internal/db"
)

// ErrNotFound is returned by Get when no conversation exists for the phone
// number.
var ErrNotFound = errors.New("conversation not found")

// Store provides typed persistence for Conversation and User records on top
// of a db.Database. It never branches on the backing engine; queries use `?`
// placeholders and the backend rebinds them.
type Store struct {
	db  db.Database
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNow overrides the store's clock. Used by tests and the scenario
// harness for deterministic timestamps.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store over the given backend.
func NewStore(d db.Database, opts ...StoreOption) *Store {
	s := &Store{db: d, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const conversationColumns = `id, phone_number, user_type, current_state, state_data, state_history,
	created_at, updated_at, last_interaction, user_id`

// Get loads the conversation for a phone number, or ErrNotFound.
func (s *Store) Get(ctx context.Context, phoneNumber string) (*Conversation, error) {
	row, err := s.db.FetchOne(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE phone_number = ?",
		phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if row == nil {
		return nil, ErrNotFound
	}
	return scanConversation(row)
}

// GetOrCreate fetches the conversation for a phone number, creating it (and
// its owning user, if absent) inside one transaction when no record exists.
// The second return value reports whether a new conversation was created.
//
// Two concurrent first-contact calls race on the phone-number uniqueness
// constraint; the loser falls back to fetching the winner's row instead of
// surfacing the violation.
func (s *Store) GetOrCreate(ctx context.Context, phoneNumber string) (*Conversation, bool, error) {
	var (
		conv    *Conversation
		created bool
	)
	err := s.db.Transaction(ctx, func(q db.Queryer) error {
		var err error
		conv, created, err = s.getOrCreate(ctx, q, phoneNumber)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			winner, gerr := s.Get(ctx, phoneNumber)
			if gerr != nil {
				return nil, false, fmt.Errorf("refetch after create race: %w", gerr)
			}
			return winner, false, nil
		}
		return nil, false, err
	}
	return conv, created, nil
}

// Save persists the full conversation state in one transaction.
func (s *Store) Save(ctx context.Context, c *Conversation) error {
	return s.db.Transaction(ctx, func(q db.Queryer) error {
		return s.save(ctx, q, c)
	})
}

// Update is the read-modify-commit boundary for message handling: it runs
// get-or-create, fn, and save inside a single transaction. When fn returns
// an error the transaction rolls back and nothing is observable, including
// a conversation created earlier in the same scope.
//
// Update retries once when the creation race loses to a concurrent
// transaction; the retry finds the winner's row.
func (s *Store) Update(ctx context.Context, phoneNumber string, fn func(*Conversation) error) (*Conversation, error) {
	conv, err := s.update(ctx, phoneNumber, fn)
	if err != nil && db.IsUniqueViolation(err) {
		conv, err = s.update(ctx, phoneNumber, fn)
	}
	return conv, err
}

func (s *Store) update(ctx context.Context, phoneNumber string, fn func(*Conversation) error) (*Conversation, error) {
	var conv *Conversation
	err := s.db.Transaction(ctx, func(q db.Queryer) error {
		c, _, err := s.getOrCreate(ctx, q, phoneNumber)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		if err := s.save(ctx, q, c); err != nil {
			return err
		}
		conv = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// UserExists reports whether a user record exists for the phone number.
func (s *Store) UserExists(ctx context.Context, phoneNumber string) (bool, error) {
	row, err := s.db.FetchOne(ctx, "SELECT id FROM users WHERE number = ?", phoneNumber)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return row != nil, nil
}

// DeleteIdleBefore removes conversations whose last interaction predates
// cutoff and returns how many were removed. Maintenance only, never called
// on the per-message path.
func (s *Store) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.Transaction(ctx, func(q db.Queryer) error {
		row, err := q.FetchOne(ctx,
			"SELECT COUNT(*) AS n FROM conversations WHERE last_interaction < ?",
			cutoff.Unix())
		if err != nil {
			return err
		}
		count = rowInt64(row, "n")
		return q.Execute(ctx,
			"DELETE FROM conversations WHERE last_interaction < ?",
			cutoff.Unix())
	})
	if err != nil {
		return 0, fmt.Errorf("delete idle conversations: %w", err)
	}
	return count, nil
}

// UserTypeCounts returns how many conversations exist per user type.
func (s *Store) UserTypeCounts(ctx context.Context) (map[UserType]int64, error) {
	rows, err := s.db.FetchAll(ctx,
		"SELECT user_type, COUNT(*) AS n FROM conversations GROUP BY user_type")
	if err != nil {
		return nil, fmt.Errorf("count user types: %w", err)
	}
	counts := make(map[UserType]int64, len(rows))
	for _, row := range rows {
		counts[UserType(rowString(row, "user_type"))] = rowInt64(row, "n")
	}
	return counts, nil
}

func (s *Store) getOrCreate(ctx context.Context, q db.Queryer, phoneNumber string) (*Conversation, bool, error) {
	row, err := q.FetchOne(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE phone_number = ?",
		phoneNumber)
	if err != nil {
		return nil, false, fmt.Errorf("get conversation: %w", err)
	}
	if row != nil {
		c, err := scanConversation(row)
		return c, false, err
	}

	userID, err := s.getOrCreateUser(ctx, q, phoneNumber)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	c := &Conversation{
		PhoneNumber:     phoneNumber,
		UserType:        UserTypeUnknown,
		CurrentState:    StateStart,
		StateData:       map[string]any{},
		History:         []State{},
		CreatedAt:       now,
		UpdatedAt:       now,
		LastInteraction: now,
		UserID:          userID,
	}

	idRow, err := q.FetchOne(ctx, `
		INSERT INTO conversations
		(phone_number, user_type, current_state, state_data, state_history,
		 created_at, updated_at, last_interaction, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		c.PhoneNumber,
		string(c.UserType),
		string(c.CurrentState),
		encodeStateData(c.StateData),
		encodeHistory(c.History),
		c.CreatedAt.Unix(),
		c.UpdatedAt.Unix(),
		c.LastInteraction.Unix(),
		c.UserID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	c.ID = rowInt64(idRow, "id")
	return c, true, nil
}

func (s *Store) getOrCreateUser(ctx context.Context, q db.Queryer, phoneNumber string) (int64, error) {
	row, err := q.FetchOne(ctx, "SELECT id FROM users WHERE number = ?", phoneNumber)
	if err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}
	if row != nil {
		return rowInt64(row, "id"), nil
	}

	idRow, err := q.FetchOne(ctx,
		"INSERT INTO users (role, number) VALUES (?, ?) RETURNING id",
		string(UserTypeUnknown), phoneNumber)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return rowInt64(idRow, "id"), nil
}

// save writes every conversation field in one statement, so current_state is
// never persisted without its matching history mutation.
func (s *Store) save(ctx context.Context, q db.Queryer, c *Conversation) error {
	err := q.Execute(ctx, `
		UPDATE conversations
		SET user_type = ?, current_state = ?, state_data = ?, state_history = ?,
		    updated_at = ?, last_interaction = ?
		WHERE phone_number = ?
	`,
		string(c.UserType),
		string(c.CurrentState),
		encodeStateData(c.StateData),
		encodeHistory(c.History),
		c.UpdatedAt.Unix(),
		c.LastInteraction.Unix(),
		c.PhoneNumber,
	)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func scanConversation(row db.Row) (*Conversation, error) {
	data, err := decodeStateData(rowString(row, "state_data"))
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	history, err := decodeHistory(rowString(row, "state_history"))
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	return &Conversation{
		ID:              rowInt64(row, "id"),
		PhoneNumber:     rowString(row, "phone_number"),
		UserType:        UserType(rowString(row, "user_type")),
		CurrentState:    State(rowString(row, "current_state")),
		StateData:       data,
		History:         history,
		CreatedAt:       time.Unix(rowInt64(row, "created_at"), 0).UTC(),
		UpdatedAt:       time.Unix(rowInt64(row, "updated_at"), 0).UTC(),
		LastInteraction: time.Unix(rowInt64(row, "last_interaction"), 0).UTC(),
		UserID:          rowInt64(row, "user_id"),
	}, nil
}

func encodeStateData(data map[string]any) string {
	if len(data) == 0 {
		return "{}"
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeStateData(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	data := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode state_data: %w", err)
	}
	return data, nil
}

func encodeHistory(history []State) string {
	if len(history) == 0 {
		return "[]"
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeHistory(raw string) ([]State, error) {
	if raw == "" {
		return []State{}, nil
	}
	history := []State{}
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decode state_history: %w", err)
	}
	return history, nil
}

// rowString and rowInt64 tolerate the type variance between drivers: TEXT
// may arrive as string or []byte, integers as int64 or int32.
func rowString(row db.Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func rowInt64(row db.Row, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}
