// Package credentials owns the custody of user wallet credentials: sealing
// agent secrets on connect and unsealing them into a signer when needed.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/envelope"
	"github.com/ashureev/pacifica-bot/internal/signing"
	"github.com/ashureev/pacifica-bot/internal/store"
	"github.com/ashureev/pacifica-bot/internal/vault"
)

var (
	ErrNotConnected = errors.New("wallet not connected")
	ErrReadOnly     = errors.New("wallet connected in read-only mode")
	ErrKeyMismatch  = errors.New("agent public key does not match stored secret")
)

// ConnectRequest carries the onboarding input. An empty AgentSecret stores
// a read-only connection.
type ConnectRequest struct {
	Profile          domain.Profile
	AccountPublicKey string
	AgentSecret      string
}

// Service seals and unseals agent secrets around the repository.
type Service struct {
	repo   store.Repository
	key    vault.MasterKey
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a credential service.
func NewService(repo store.Repository, key vault.MasterKey, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, key: key, logger: logger, now: time.Now}
}

// Connect validates the submitted keys, seals the agent secret and persists
// the credential. Reconnecting replaces the previous keys.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (*domain.UserCredential, error) {
	account, err := signing.ParsePublicKey(req.AccountPublicKey)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred := &domain.UserCredential{
		TelegramID:       req.Profile.TelegramID,
		Username:         req.Profile.Username,
		FirstName:        req.Profile.FirstName,
		LastName:         req.Profile.LastName,
		AccountPublicKey: account.String(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if req.AgentSecret != "" {
		kp, err := signing.ParseSecret(req.AgentSecret)
		if err != nil {
			return nil, err
		}
		plain := []byte(kp.EncodeSecret())
		sealed, err := vault.Encrypt(plain, s.key)
		signing.Wipe(plain)
		if err != nil {
			return nil, fmt.Errorf("seal agent secret: %w", err)
		}
		cred.AgentSecret = &sealed
		cred.AgentPublicKey = kp.PublicKey().String()
		cred.APIConfigKey = cred.AgentPublicKey
	}

	existing, err := s.repo.GetCredential(ctx, cred.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if existing != nil {
		cred.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.UpsertCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	s.logger.Info("wallet connected",
		"user_id", cred.TelegramID,
		"account", cred.AccountPublicKey,
		"agent_wallet", cred.AgentPublicKey,
		"can_trade", cred.CanTrade(),
	)
	return cred, nil
}

// Get returns the stored credential or ErrNotConnected.
func (s *Service) Get(ctx context.Context, userID int64) (*domain.UserCredential, error) {
	cred, err := s.repo.GetCredential(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return nil, ErrNotConnected
	}
	return cred, nil
}

// Signer unseals the user's agent secret into an agent-role signer. The
// re-derived public key must equal the stored one.
func (s *Service) Signer(ctx context.Context, userID int64) (envelope.Signer, error) {
	cred, err := s.Get(ctx, userID)
	if err != nil {
		return envelope.Signer{}, err
	}
	if !cred.CanTrade() {
		return envelope.Signer{}, ErrReadOnly
	}

	account, err := signing.ParsePublicKey(cred.AccountPublicKey)
	if err != nil {
		return envelope.Signer{}, fmt.Errorf("stored account key: %w", err)
	}

	plain, err := vault.Decrypt(*cred.AgentSecret, s.key)
	if err != nil {
		s.logger.Warn("agent secret failed to unseal", "user_id", userID, "error", err)
		return envelope.Signer{}, err
	}
	kp, err := signing.ParseSecretBytes(plain)
	signing.Wipe(plain)
	if err != nil {
		return envelope.Signer{}, fmt.Errorf("stored agent secret: %w", err)
	}

	if kp.PublicKey().String() != cred.AgentPublicKey {
		s.logger.Warn("agent key mismatch", "user_id", userID, "stored", cred.AgentPublicKey, "derived", kp.PublicKey().String())
		return envelope.Signer{}, ErrKeyMismatch
	}

	return envelope.Signer{Role: envelope.RoleAgent, Account: account, Agent: kp}, nil
}

// Delete removes the user's credential. It reports whether one existed.
func (s *Service) Delete(ctx context.Context, userID int64) (bool, error) {
	existed, err := s.repo.DeleteCredential(ctx, userID)
	if err != nil {
		return false, err
	}
	if existed {
		s.logger.Info("wallet disconnected", "user_id", userID)
	}
	return existed, nil
}
