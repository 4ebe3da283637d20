package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/account-gateway/internal/csrf"
	"github.com/tjfontaine/account-gateway/internal/storage"
)

// Store is a SQLite implementation of storage.Store and csrf.Store.
type Store struct {
	db *sql.DB
}

var (
	_ storage.Store = (*Store)(nil)
	_ csrf.Store    = (*Store)(nil)
)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps the pragmas
	// below in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			avatar_url TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			account_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			joined_at TIMESTAMP NOT NULL,
			PRIMARY KEY (account_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS active_accounts (
			user_id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			screenshot_url TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS csrf_tokens (
			session_id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_user ON members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback(user_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// =============================================================================
// Accounts
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, account storage.Account, owner storage.Member) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, name, type, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		account.ID, account.Name, string(account.Type), nullString(account.AvatarURL), account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", account.ID, storage.ErrConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO members (account_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		account.ID, owner.UserID, string(owner.Role), owner.JoinedAt); err != nil {
		return fmt.Errorf("failed to insert owner: %w", err)
	}

	return tx.Commit()
}

func (s *Store) GetAccount(ctx context.Context, id string) (storage.Account, error) {
	var (
		account storage.Account
		typ     string
		avatar  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, avatar_url, created_at FROM accounts WHERE id = ?`, id).
		Scan(&account.ID, &account.Name, &typ, &avatar, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	account.Type = storage.AccountType(typ)
	account.AvatarURL = avatar.String
	return account, nil
}

func (s *Store) ListAccountsForUser(ctx context.Context, userID string) ([]storage.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.type, a.avatar_url, a.created_at
		   FROM accounts a JOIN members m ON m.account_id = a.id
		  WHERE m.user_id = ?
		  ORDER BY a.created_at ASC, a.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var result []storage.Account
	for rows.Next() {
		var (
			account storage.Account
			typ     string
			avatar  sql.NullString
		)
		if err := rows.Scan(&account.ID, &account.Name, &typ, &avatar, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		account.Type = storage.AccountType(typ)
		account.AvatarURL = avatar.String
		result = append(result, account)
	}
	return result, rows.Err()
}

func (s *Store) GetMember(ctx context.Context, accountID, userID string) (storage.Member, error) {
	m := storage.Member{AccountID: accountID, UserID: userID}
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role, joined_at FROM members WHERE account_id = ? AND user_id = ?`, accountID, userID).
		Scan(&role, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Member{}, fmt.Errorf("member %s of %s: %w", userID, accountID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Member{}, fmt.Errorf("failed to get member: %w", err)
	}
	m.Role = storage.Role(role)
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context, accountID string) ([]storage.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, role, joined_at FROM members
		  WHERE account_id = ?
		  ORDER BY joined_at ASC, user_id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	result := []storage.Member{}
	for rows.Next() {
		m := storage.Member{AccountID: accountID}
		var role string
		if err := rows.Scan(&m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = storage.Role(role)
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) AddMember(ctx context.Context, m storage.Member) error {
	if _, err := s.GetAccount(ctx, m.AccountID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO members (account_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(account_id, user_id) DO NOTHING`,
		m.AccountID, m.UserID, string(m.Role), m.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("member %s of %s: %w", m.UserID, m.AccountID, storage.ErrConflict)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, accountID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM members WHERE account_id = ? AND user_id = ?`, accountID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("member %s of %s: %w", userID, accountID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM active_accounts WHERE user_id = ? AND account_id = ?`, userID, accountID); err != nil {
		return fmt.Errorf("failed to clear active account: %w", err)
	}

	return tx.Commit()
}

func (s *Store) SetActiveAccount(ctx context.Context, userID, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO active_accounts (user_id, account_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET account_id = excluded.account_id, updated_at = excluded.updated_at`,
		userID, accountID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set active account: %w", err)
	}
	return nil
}

func (s *Store) ActiveAccount(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id FROM active_accounts WHERE user_id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("active account of %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active account: %w", err)
	}
	return id, nil
}

// =============================================================================
// Feedback
// =============================================================================

func (s *Store) InsertFeedback(ctx context.Context, fb storage.Feedback) error {
	var screenshot sql.NullString
	if fb.ScreenshotURL != nil {
		screenshot = sql.NullString{String: *fb.ScreenshotURL, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, user_id, category, message, screenshot_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.UserID, fb.Category, fb.Message, screenshot, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the feedback submitted by userID, oldest first.
func (s *Store) ListFeedback(ctx context.Context, userID string) ([]storage.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, message, screenshot_url, created_at FROM feedback
		  WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var result []storage.Feedback
	for rows.Next() {
		fb := storage.Feedback{UserID: userID}
		var screenshot sql.NullString
		if err := rows.Scan(&fb.ID, &fb.Category, &fb.Message, &screenshot, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		if screenshot.Valid {
			fb.ScreenshotURL = &screenshot.String
		}
		result = append(result, fb)
	}
	return result, rows.Err()
}

// =============================================================================
// CSRF tokens
// =============================================================================

// Token implements csrf.Store.
func (s *Store) Token(ctx context.Context, session string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM csrf_tokens WHERE session_id = ?`, session).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", csrf.ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to get csrf token: %w", err)
	}
	return token, nil
}

// Issue implements csrf.Store.
func (s *Store) Issue(ctx context.Context, session, candidate string) (string, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO csrf_tokens (session_id, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		session, candidate, time.Now()); err != nil {
		return "", fmt.Errorf("failed to issue csrf token: %w", err)
	}
	return s.Token(ctx, session)
}

// Replace implements csrf.Store.
func (s *Store) Replace(ctx context.Context, session, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO csrf_tokens (session_id, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		session, token, time.Now())
	if err != nil {
		return fmt.Errorf("failed to replace csrf token: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
