// Package domain contains core domain types for the Pacifica bot.
package domain

import (
	"time"
)

// EncryptedSecret is an AES-GCM sealed secret. All fields are hex encoded.
type EncryptedSecret struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// UserCredential links a chat user to a Pacifica account and, optionally, a
// delegated agent wallet whose secret is kept sealed.
type UserCredential struct {
	TelegramID       int64            `json:"telegram_id"`
	Username         string           `json:"username,omitempty"`
	FirstName        string           `json:"first_name,omitempty"`
	LastName         string           `json:"last_name,omitempty"`
	AccountPublicKey string           `json:"account_public_key"`
	AgentSecret      *EncryptedSecret `json:"-"`
	AgentPublicKey   string           `json:"agent_public_key,omitempty"`
	APIConfigKey     string           `json:"api_config_key,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CanTrade reports whether the credential carries an agent wallet able to
// sign mutating actions.
func (c *UserCredential) CanTrade() bool {
	return c.AgentSecret != nil && c.AgentPublicKey != ""
}

// Profile is the chat-side identity captured during onboarding.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}
