// Package vault seals agent wallet secrets at rest with AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ashureev/pacifica-bot/internal/domain"
)

const (
	// KeySize is the master key length in bytes.
	KeySize = 32
	// IVSize is the nonce length. Stored blobs use 16-byte IVs.
	IVSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// associatedData binds every ciphertext to this application.
var associatedData = []byte("pacifica-bot")

var (
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrInvalidMasterKey      = errors.New("invalid master key")
)

// MasterKey is the 256-bit key supplied at startup.
type MasterKey [KeySize]byte

// ParseMasterKey decodes a key given as exactly 64 hexadecimal characters.
func ParseMasterKey(s string) (MasterKey, error) {
	var key MasterKey
	if len(s) != KeySize*2 {
		return key, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidMasterKey, KeySize*2, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("%w: not hexadecimal", ErrInvalidMasterKey)
	}
	copy(key[:], raw)
	return key, nil
}

// GenerateMasterKey returns a fresh random key.
func GenerateMasterKey() (MasterKey, error) {
	var key MasterKey
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("generate master key: %w", err)
	}
	return key, nil
}

// Hex returns the key in the form ParseMasterKey accepts. It is meant only
// for printing a newly generated key.
func (k MasterKey) Hex() string { return hex.EncodeToString(k[:]) }

func (MasterKey) String() string { return "[REDACTED]" }

// LogValue implements slog.LogValuer.
func (MasterKey) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

func newAEAD(key MasterKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under key with a fresh random IV.
func Encrypt(plaintext []byte, key MasterKey) (domain.EncryptedSecret, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return domain.EncryptedSecret{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return domain.EncryptedSecret{}, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, associatedData)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return domain.EncryptedSecret{
		Ciphertext: hex.EncodeToString(ct),
		IV:         hex.EncodeToString(iv),
		AuthTag:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens blob. Any malformed field, wrong key or tampering yields
// ErrAuthenticationFailure and no plaintext.
func Decrypt(blob domain.EncryptedSecret, key MasterKey) ([]byte, error) {
	ct, err := hex.DecodeString(blob.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", ErrAuthenticationFailure)
	}
	iv, err := hex.DecodeString(blob.IV)
	if err != nil || len(iv) != IVSize {
		return nil, fmt.Errorf("%w: malformed iv", ErrAuthenticationFailure)
	}
	tag, err := hex.DecodeString(blob.AuthTag)
	if err != nil || len(tag) != TagSize {
		return nil, fmt.Errorf("%w: malformed tag", ErrAuthenticationFailure)
	}

	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, associatedData)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}
	return plaintext, nil
}
