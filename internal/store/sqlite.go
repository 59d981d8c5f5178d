package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries    = 3
	writeRetryDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLiteForTesting wraps an already opened database without touching the schema.
func NewSQLiteForTesting(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS user_credentials (
		telegram_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		account_public_key TEXT NOT NULL,
		agent_ciphertext TEXT,
		agent_iv TEXT,
		agent_auth_tag TEXT,
		agent_public_key TEXT,
		api_config_key TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_credentials_account ON user_credentials(account_public_key);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetCredential retrieves a credential by Telegram user ID.
func (s *SQLiteStore) GetCredential(ctx context.Context, telegramID int64) (*domain.UserCredential, error) {
	query := `
		SELECT telegram_id, username, first_name, last_name, account_public_key,
		       agent_ciphertext, agent_iv, agent_auth_tag, agent_public_key, api_config_key,
		       created_at, updated_at
		FROM user_credentials WHERE telegram_id = ?`

	row := s.db.QueryRowContext(ctx, query, telegramID)

	var cred domain.UserCredential
	var ciphertext, iv, tag, agentPub, apiKey sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&cred.TelegramID, &cred.Username, &cred.FirstName, &cred.LastName, &cred.AccountPublicKey,
		&ciphertext, &iv, &tag, &agentPub, &apiKey,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential row: %w", err)
	}

	if ciphertext.Valid && iv.Valid && tag.Valid {
		cred.AgentSecret = &domain.EncryptedSecret{
			Ciphertext: ciphertext.String,
			IV:         iv.String,
			AuthTag:    tag.String,
		}
	}
	cred.AgentPublicKey = agentPub.String
	cred.APIConfigKey = apiKey.String
	cred.CreatedAt = time.Unix(createdAt, 0)
	cred.UpdatedAt = time.Unix(updatedAt, 0)

	return &cred, nil
}

// UpsertCredential creates or updates a credential record. created_at is
// kept from the first insert.
func (s *SQLiteStore) UpsertCredential(ctx context.Context, cred *domain.UserCredential) error {
	query := `
	INSERT INTO user_credentials (
		telegram_id, username, first_name, last_name, account_public_key,
		agent_ciphertext, agent_iv, agent_auth_tag, agent_public_key, api_config_key,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(telegram_id) DO UPDATE SET
		username = excluded.username,
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		account_public_key = excluded.account_public_key,
		agent_ciphertext = excluded.agent_ciphertext,
		agent_iv = excluded.agent_iv,
		agent_auth_tag = excluded.agent_auth_tag,
		agent_public_key = excluded.agent_public_key,
		api_config_key = excluded.api_config_key,
		updated_at = excluded.updated_at`

	var ciphertext, iv, tag interface{}
	if cred.AgentSecret != nil {
		ciphertext = cred.AgentSecret.Ciphertext
		iv = cred.AgentSecret.IV
		tag = cred.AgentSecret.AuthTag
	}

	err := shared.RetryOnConflict(ctx, "upsert credential", writeRetries, writeRetryDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			cred.TelegramID, cred.Username, cred.FirstName, cred.LastName, cred.AccountPublicKey,
			ciphertext, iv, tag, nullable(cred.AgentPublicKey), nullable(cred.APIConfigKey),
			cred.CreatedAt.Unix(), cred.UpdatedAt.Unix(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// DeleteCredential removes a credential record.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, telegramID int64) (bool, error) {
	var rows int64
	err := shared.RetryOnConflict(ctx, "delete credential", writeRetries, writeRetryDelay, func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM user_credentials WHERE telegram_id = ?`, telegramID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	return rows > 0, nil
}

// CountCredentials returns the number of stored credentials.
func (s *SQLiteStore) CountCredentials(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
