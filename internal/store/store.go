// Package store persists linked accounts and their OAuth credentials in a
// SQLite database. Token values are written as ciphertext blobs produced by
// the cipher package; plaintext never reaches disk.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/router-for-me/xlink/internal/cipher"
	"github.com/router-for-me/xlink/internal/xoauth"
)

const schema = `
CREATE TABLE IF NOT EXISTS linked_accounts (
	owner_id      TEXT NOT NULL,
	x_user_id     TEXT NOT NULL,
	username      TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL DEFAULT '',
	profile_image TEXT NOT NULL DEFAULT '',
	linked_at     TEXT NOT NULL,
	PRIMARY KEY (owner_id, x_user_id)
);
CREATE TABLE IF NOT EXISTS credentials (
	owner_id      TEXT NOT NULL,
	x_user_id     TEXT NOT NULL,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at    TEXT NOT NULL DEFAULT '',
	scope         TEXT NOT NULL DEFAULT '',
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (owner_id, x_user_id)
);
`

// LinkedAccount is one external X account associated with a local identity.
type LinkedAccount struct {
	OwnerID      string
	XUserID      string
	Username     string
	Name         string
	ProfileImage string
	LinkedAt     time.Time
}

// CredentialRecord is the durable, encrypted credential row for one
// (owner, external account) pair. AccessToken and RefreshToken hold
// ciphertext blobs. A zero ExpiresAt means the provider reported no expiry.
type CredentialRecord struct {
	OwnerID      string
	XUserID      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
	UpdatedAt    time.Time
}

// Store wraps the SQLite database and the cipher used for token columns.
type Store struct {
	db     *sql.DB
	cipher *cipher.Cipher
}

// Open opens (creating if needed) the database at path and bootstraps the
// schema.
func Open(path string, c *cipher.Cipher) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, cipher: c}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertLinkedAccount inserts the account or refreshes its display fields.
func (s *Store) UpsertLinkedAccount(ctx context.Context, a *LinkedAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO linked_accounts (owner_id, x_user_id, username, name, profile_image, linked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, x_user_id) DO UPDATE SET
			username = excluded.username,
			name = excluded.name,
			profile_image = excluded.profile_image`,
		a.OwnerID, a.XUserID, a.Username, a.Name, a.ProfileImage, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert linked account: %w", err)
	}
	return nil
}

// LinkedAccounts lists the owner's accounts in link order. The first entry is
// the fallback when no active account is selected.
func (s *Store) LinkedAccounts(ctx context.Context, ownerID string) ([]LinkedAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, x_user_id, username, name, profile_image, linked_at
		FROM linked_accounts WHERE owner_id = ? ORDER BY linked_at, x_user_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LinkedAccount
	for rows.Next() {
		var a LinkedAccount
		var linkedAt string
		if err := rows.Scan(&a.OwnerID, &a.XUserID, &a.Username, &a.Name, &a.ProfileImage, &linkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		a.LinkedAt, _ = time.Parse(time.RFC3339, linkedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteLinkedAccount removes the account and cascades to its credential row.
func (s *Store) DeleteLinkedAccount(ctx context.Context, ownerID, xUserID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE owner_id = ? AND x_user_id = ?`, ownerID, xUserID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM linked_accounts WHERE owner_id = ? AND x_user_id = ?`, ownerID, xUserID); err != nil {
		return fmt.Errorf("failed to delete linked account: %w", err)
	}
	return tx.Commit()
}

// UpsertCredential encrypts the token result and writes the single credential
// row for the pair, last write wins. A missing refresh_token or scope in the
// result preserves the previously stored value: refresh responses may omit an
// unchanged refresh token, and that is not a revocation.
func (s *Store) UpsertCredential(ctx context.Context, ownerID, xUserID string, tok *xoauth.TokenResult) (*CredentialRecord, error) {
	encAccess, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	encRefresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return nil, err
	}
	expiresAt := ""
	if !tok.ExpiresAt.IsZero() {
		expiresAt = tok.ExpiresAt.UTC().Format(time.RFC3339)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (owner_id, x_user_id, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, x_user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = '' THEN credentials.refresh_token ELSE excluded.refresh_token END,
			expires_at = excluded.expires_at,
			scope = CASE WHEN excluded.scope = '' THEN credentials.scope ELSE excluded.scope END,
			updated_at = excluded.updated_at`,
		ownerID, xUserID, encAccess, encRefresh, expiresAt, tok.Scope, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert credential: %w", err)
	}
	return s.Credential(ctx, ownerID, xUserID)
}

// Credential returns the stored record for the pair, or nil when none exists.
func (s *Store) Credential(ctx context.Context, ownerID, xUserID string) (*CredentialRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner_id, x_user_id, access_token, refresh_token, expires_at, scope, updated_at
		FROM credentials WHERE owner_id = ? AND x_user_id = ?`, ownerID, xUserID)

	var rec CredentialRecord
	var expiresAt, updatedAt string
	err := row.Scan(&rec.OwnerID, &rec.XUserID, &rec.AccessToken, &rec.RefreshToken, &expiresAt, &rec.Scope, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if expiresAt != "" {
		rec.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// DeleteCredential removes the credential row, keeping the linked account.
func (s *Store) DeleteCredential(ctx context.Context, ownerID, xUserID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE owner_id = ? AND x_user_id = ?`, ownerID, xUserID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// DecryptTokens returns the plaintext access and refresh tokens of a record.
// Undecryptable blobs yield a cipher.CryptoError: the record is unusable and
// the account must be re-linked.
func (s *Store) DecryptTokens(rec *CredentialRecord) (accessToken, refreshToken string, err error) {
	accessToken, err = s.cipher.Decrypt(rec.AccessToken)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.cipher.Decrypt(rec.RefreshToken)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}
