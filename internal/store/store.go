// Package store persists conversation turns and FAQ entries in SQLite.
// The conversation table follows a partition-key/sort-key layout:
// conversation_id groups a conversation, ordering_key (microseconds)
// sorts turns within it. Turns are immutable once written.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
	_ "github.com/glebarez/go-sqlite"

	"github.com/kus-aws/backend-go/internal/config"
)

// ErrPersistence wraps any write failure so callers can decide whether a
// lost turn should fail the whole request.
var ErrPersistence = errors.New("persistence failure")

// Roles recognized for a turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	ConversationID string `db:"conversation_id" json:"conversationId"`
	OrderingKey    int64  `db:"ordering_key" json:"orderingKey"`
	Role           string `db:"role" json:"role"`
	Content        string `db:"content" json:"content"`
	Major          string `db:"major" json:"major"`
	SubField       string `db:"sub_field" json:"subField"`
}

// FAQ is one curated question/answer pair for a sub-field.
type FAQ struct {
	Question string `db:"question" json:"question"`
	Answer   string `db:"answer" json:"answer"`
}

// Store reads and appends turns and serves FAQ lookups. It is safe for
// concurrent use and is constructed once per process.
type Store struct {
	db                *sql.DB
	conversationTable string
	faqTable          string
}

// Open opens (creating if needed) the SQLite database at cfg.Path.
func Open(cfg config.StoreConfig) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+cfg.Path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{
		db:                db,
		conversationTable: cfg.ConversationTable,
		faqTable:          cfg.FAQTable,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			conversation_id TEXT NOT NULL,
			ordering_key INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			major TEXT NOT NULL DEFAULT '',
			sub_field TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (conversation_id, ordering_key)
		);`, s.conversationTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			sub_field TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL
		);`, s.faqTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sub_field ON %s (sub_field);`,
			s.faqTable, s.faqTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// History returns all turns of a conversation, oldest first. An unknown
// conversation yields an empty slice, not an error.
func (s *Store) History(ctx context.Context, conversationID string) ([]Turn, error) {
	query := fmt.Sprintf(`SELECT conversation_id, ordering_key, role, content, major, sub_field
		FROM %s WHERE conversation_id = ? ORDER BY ordering_key ASC`, s.conversationTable)

	turns := []Turn{}
	if err := sqlscan.Select(ctx, s.db, &turns, query, conversationID); err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", conversationID, err)
	}
	return turns, nil
}

// AppendTurn durably writes a single turn. The caller supplies the
// ordering key so paired user/assistant writes keep their relative
// order (assistant key = user key plus a positive epsilon).
func (s *Store) AppendTurn(ctx context.Context, turn Turn) error {
	query := fmt.Sprintf(`INSERT INTO %s (conversation_id, ordering_key, role, content, major, sub_field)
		VALUES (?, ?, ?, ?, ?, ?)`, s.conversationTable)

	_, err := s.db.ExecContext(ctx, query,
		turn.ConversationID, turn.OrderingKey, turn.Role, turn.Content, turn.Major, turn.SubField)
	if err != nil {
		return fmt.Errorf("%w: append %s turn to %s: %v", ErrPersistence, turn.Role, turn.ConversationID, err)
	}
	return nil
}

// FAQs returns the FAQ entries for a sub-field; empty when none exist.
func (s *Store) FAQs(ctx context.Context, subField string) ([]FAQ, error) {
	query := fmt.Sprintf(`SELECT question, answer FROM %s WHERE sub_field = ?`, s.faqTable)

	faqs := []FAQ{}
	if err := sqlscan.Select(ctx, s.db, &faqs, query, subField); err != nil {
		return nil, fmt.Errorf("fetch faqs for %s: %w", subField, err)
	}
	return faqs, nil
}

// AddFAQ inserts a FAQ entry. Used for seeding and tests.
func (s *Store) AddFAQ(ctx context.Context, subField string, faq FAQ) error {
	query := fmt.Sprintf(`INSERT INTO %s (sub_field, question, answer) VALUES (?, ?, ?)`, s.faqTable)
	if _, err := s.db.ExecContext(ctx, query, subField, faq.Question, faq.Answer); err != nil {
		return fmt.Errorf("%w: add faq for %s: %v", ErrPersistence, subField, err)
	}
	return nil
}
