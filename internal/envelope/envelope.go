// Package envelope assembles signed Pacifica request bodies.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/pacifica-bot/internal/canonical"
	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/signing"
	"github.com/gagliardetto/solana-go"
)

// ExpiryWindow is the validity window, in milliseconds, the exchange
// applies from the signed timestamp.
const ExpiryWindow int64 = 5000

const (
	fieldAccount      = "account"
	fieldAgentWallet  = "agent_wallet"
	fieldSignature    = "signature"
	fieldTimestamp    = "timestamp"
	fieldExpiryWindow = "expiry_window"
)

var reservedFields = []string{fieldAccount, fieldAgentWallet, fieldSignature, fieldTimestamp, fieldExpiryWindow}

var (
	ErrNoSigningKeyAvailable = errors.New("no signing key available")
	ErrReservedField         = errors.New("payload uses reserved envelope field")
)

// Role selects which key signs a request.
type Role int

const (
	// RoleMain signs with the account's own key. No agent_wallet is sent.
	RoleMain Role = iota + 1
	// RoleAgent signs with a delegated agent wallet on behalf of the account.
	RoleAgent
)

func (r Role) String() string {
	switch r {
	case RoleMain:
		return "main"
	case RoleAgent:
		return "agent"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Signer identifies who a request is attributed to and which key signs it.
// The role is always chosen by the caller.
type Signer struct {
	Role    Role
	Account solana.PublicKey
	Main    signing.Keypair
	Agent   signing.Keypair
}

// Envelope is one signed request, built right before it is sent.
type Envelope struct {
	Action       domain.ActionType
	Timestamp    int64
	ExpiryWindow int64
	Message      []byte
	Signature    string
	Body         map[string]any
}

// MarshalJSON encodes the transmitted body.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Body)
}

// Builder signs payloads. It holds no key material.
type Builder struct {
	now func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a builder using the wall clock.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates p, signs it for signer and returns the envelope. The
// timestamp is captured once and used in both message and body.
func (b *Builder) Build(p domain.Payload, signer Signer) (*Envelope, error) {
	key, agentWallet, err := selectKey(signer)
	if err != nil {
		return nil, err
	}
	if err := domain.Validate(p); err != nil {
		return nil, err
	}

	fields, err := payloadFields(p)
	if err != nil {
		return nil, err
	}

	ts := b.now().UnixMilli()
	message, err := canonical.Marshal(map[string]any{
		"type":            string(p.Action()),
		fieldTimestamp:    ts,
		fieldExpiryWindow: ExpiryWindow,
		"data":            fields,
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalize message: %w", err)
	}

	sig, err := signing.Sign(message, key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	encoded := signing.Encode(sig)

	body := make(map[string]any, len(fields)+len(reservedFields))
	for k, v := range fields {
		body[k] = v
	}
	body[fieldAccount] = signer.Account.String()
	body[fieldSignature] = encoded
	body[fieldTimestamp] = ts
	body[fieldExpiryWindow] = ExpiryWindow
	if agentWallet != "" {
		body[fieldAgentWallet] = agentWallet
	}

	return &Envelope{
		Action:       p.Action(),
		Timestamp:    ts,
		ExpiryWindow: ExpiryWindow,
		Message:      message,
		Signature:    encoded,
		Body:         body,
	}, nil
}

func selectKey(s Signer) (signing.Keypair, string, error) {
	if s.Account == (solana.PublicKey{}) {
		return signing.Keypair{}, "", fmt.Errorf("%w: missing account", ErrNoSigningKeyAvailable)
	}
	switch s.Role {
	case RoleMain:
		if !s.Main.Valid() {
			return signing.Keypair{}, "", fmt.Errorf("%w: role %s", ErrNoSigningKeyAvailable, s.Role)
		}
		return s.Main, "", nil
	case RoleAgent:
		if !s.Agent.Valid() {
			return signing.Keypair{}, "", fmt.Errorf("%w: role %s", ErrNoSigningKeyAvailable, s.Role)
		}
		return s.Agent, s.Agent.PublicKey().String(), nil
	default:
		return signing.Keypair{}, "", fmt.Errorf("%w: unknown role %s", ErrNoSigningKeyAvailable, s.Role)
	}
}

func payloadFields(p domain.Payload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	for _, k := range reservedFields {
		if _, ok := fields[k]; ok {
			return nil, fmt.Errorf("%w: %s", ErrReservedField, k)
		}
	}
	return fields, nil
}

// Verify checks that body carries a valid signature for action from pub.
// The message is rebuilt from the transmitted values.
func Verify(action domain.ActionType, body map[string]any, pub solana.PublicKey) error {
	sigText, _ := body[fieldSignature].(string)
	sig, err := signing.Decode(sigText)
	if err != nil {
		return fmt.Errorf("%w: %v", signing.ErrInvalidSignature, err)
	}

	data := make(map[string]any, len(body))
	for k, v := range body {
		data[k] = v
	}
	for _, k := range reservedFields {
		delete(data, k)
	}

	message, err := canonical.Marshal(map[string]any{
		"type":            string(action),
		fieldTimestamp:    body[fieldTimestamp],
		fieldExpiryWindow: body[fieldExpiryWindow],
		"data":            data,
	})
	if err != nil {
		return fmt.Errorf("canonicalize message: %w", err)
	}
	return signing.Verify(pub, message, sig)
}
