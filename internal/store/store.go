// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/pacifica-bot/internal/domain"
)

// Repository defines the interface for persisting user credentials.
// Agent secrets only ever cross this boundary in sealed form.
type Repository interface {
	// GetCredential retrieves a credential by Telegram user ID.
	// Returns nil, nil when the user has not connected.
	GetCredential(ctx context.Context, telegramID int64) (*domain.UserCredential, error)

	// UpsertCredential creates or updates a credential record.
	UpsertCredential(ctx context.Context, cred *domain.UserCredential) error

	// DeleteCredential removes a credential. It reports whether a record existed.
	DeleteCredential(ctx context.Context, telegramID int64) (bool, error)

	// CountCredentials returns the number of stored credentials.
	CountCredentials(ctx context.Context) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
