// Package signing holds the ed25519 operations used to authorize Pacifica
// actions. Keys use the Solana conventions: a 64-byte secret whose last 32
// bytes are the public key, both exchanged as base58 text.
package signing

import (
	"crypto/ed25519"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unsafe"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const (
	// SecretKeySize is the length of a Solana keypair secret (seed + public key).
	SecretKeySize = ed25519.PrivateKeySize
	// PublicKeySize is the length of an account or agent address.
	PublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the length of a detached signature.
	SignatureSize = ed25519.SignatureSize
)

var (
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// Keypair is a parsed signing key. Its String and LogValue forms only ever
// expose the public half.
type Keypair struct {
	public solana.PublicKey
	secret solana.PrivateKey
}

// DeriveKeypair validates a raw 64-byte secret and returns its keypair.
// The embedded public half must match the one derived from the seed.
func DeriveKeypair(secret []byte) (Keypair, error) {
	if len(secret) != SecretKeySize {
		return Keypair{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyMaterial, SecretKeySize, len(secret))
	}

	derived := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	if subtle.ConstantTimeCompare(derived[ed25519.SeedSize:], secret[ed25519.SeedSize:]) != 1 {
		return Keypair{}, fmt.Errorf("%w: public half does not match seed", ErrInvalidKeyMaterial)
	}

	priv := make(solana.PrivateKey, SecretKeySize)
	copy(priv, derived)
	return Keypair{public: priv.PublicKey(), secret: priv}, nil
}

// ParseSecret decodes a base58 keypair secret as exported by Solana wallets.
func ParseSecret(text string) (Keypair, error) {
	raw, err := Decode(strings.TrimSpace(text))
	if err != nil {
		return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	defer Wipe(raw)
	return DeriveKeypair(raw)
}

// ParseSecretBytes is ParseSecret for text held in a mutable buffer, such as
// a vault plaintext. The text is read in place, so wiping b afterwards
// leaves no copy of the secret behind.
func ParseSecretBytes(b []byte) (Keypair, error) {
	if len(b) == 0 {
		return ParseSecret("")
	}
	return ParseSecret(unsafe.String(&b[0], len(b)))
}

// ParsePublicKey decodes a base58 address and checks it is 32 bytes long.
func ParsePublicKey(text string) (solana.PublicKey, error) {
	pub, err := solana.PublicKeyFromBase58(strings.TrimSpace(text))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return pub, nil
}

// NewKeypair generates a random keypair.
func NewKeypair() (Keypair, error) {
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return DeriveKeypair(priv)
}

// PublicKey returns the public half.
func (k Keypair) PublicKey() solana.PublicKey {
	return k.public
}

// Valid reports whether k holds a secret.
func (k Keypair) Valid() bool {
	return len(k.secret) == SecretKeySize
}

// EncodeSecret returns the base58 form of the secret. Callers must hand the
// result straight to the vault.
func (k Keypair) EncodeSecret() string {
	return Encode(k.secret)
}

func (k Keypair) String() string {
	return "Keypair(" + k.public.String() + ")"
}

// LogValue implements slog.LogValuer.
func (k Keypair) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("public_key", k.public.String()),
		slog.String("secret", "[REDACTED]"),
	)
}

// Sign returns the detached ed25519 signature of message. It is
// deterministic for a fixed message and key.
func Sign(message []byte, k Keypair) ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: empty keypair", ErrInvalidKeyMaterial)
	}
	return ed25519.Sign(ed25519.PrivateKey(k.secret), message), nil
}

// Verify checks sig against message for the given public key.
func Verify(pub solana.PublicKey, message, sig []byte) error {
	if len(sig) != SignatureSize {
		return ErrInvalidSignature
	}
	if !ed25519.Verify(pub[:], message, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// Encode returns the base58 text of b.
func Encode(b []byte) string {
	return base58.Encode(b)
}

// Decode parses base58 text.
func Decode(text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("empty base58 string")
	}
	b, err := base58.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("decode base58: %w", err)
	}
	return b, nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
