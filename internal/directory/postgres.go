package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var (
	accountColumns = []string{"id", "full_name", "company", "role", "last_message"}
	messageColumns = []string{"id", "account_id", "sender", "body", "sent_at"}
)

// PostgresStore keeps the directory in the accounts and messages tables
// created by the migrate package.
type PostgresStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresStore{db: db, nowFunc: time.Now}, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	q, args, err := psq.Select(accountColumns...).From("accounts").OrderBy("position", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build accounts query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	out := make([]Account, 0)
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.FullName, &a.Company, &a.Role, &a.LastMessage); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, ErrNotFound
	}
	q, args, err := psq.Select(accountColumns...).From("accounts").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Account{}, fmt.Errorf("build account query: %w", err)
	}
	var a Account
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&a.ID, &a.FullName, &a.Company, &a.Role, &a.LastMessage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, accountID string) ([]Message, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	q, args, err := psq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("sent_at", "seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build messages query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AccountID, &m.From, &m.Text, &m.At); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.At = m.At.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, accountID string, from Sender, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return Message{}, err
	}

	m := Message{
		ID:        uuid.NewString(),
		AccountID: accountID,
		From:      from,
		Text:      text,
		At:        s.nowFunc().UTC(),
	}
	q, args, err := psq.Insert("messages").
		Columns(messageColumns...).
		Values(m.ID, m.AccountID, string(m.From), m.Text, m.At).
		ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build message insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// SeedIfEmpty loads seed into an empty directory. It reports whether
// anything was written.
func (s *PostgresStore) SeedIfEmpty(ctx context.Context, seed Seed) (bool, error) {
	var n int
	q, args, err := psq.Select("COUNT(*)").From("accounts").ToSql()
	if err != nil {
		return false, fmt.Errorf("build accounts count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(seed.Accounts) > 0 {
		ins := psq.Insert("accounts").Columns(append(accountColumns, "position")...)
		for i, a := range seed.Accounts {
			ins = ins.Values(a.ID, a.FullName, a.Company, string(a.Role), a.LastMessage, i)
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return false, fmt.Errorf("build accounts insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return false, fmt.Errorf("insert seed accounts: %w", err)
		}
	}

	for _, a := range seed.Accounts {
		msgs := seed.Messages[a.ID]
		if len(msgs) == 0 {
			continue
		}
		ins := psq.Insert("messages").Columns(messageColumns...)
		for _, m := range msgs {
			ins = ins.Values(m.ID, a.ID, string(m.From), m.Text, m.At.UTC())
		}
		q, args, err := ins.ToSql()
		if err != nil {
			return false, fmt.Errorf("build messages insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return false, fmt.Errorf("insert seed messages for %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit seed tx: %w", err)
	}
	return true, nil
}
