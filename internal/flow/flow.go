// Package flow implements the per-user conversational state machine that
// collects the fields of one signed action. It performs no I/O: Step
// returns the next session and an effect for the caller to carry out.
package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/google/uuid"
)

// Kind names a flow.
type Kind string

const (
	KindConnect     Kind = "connect"
	KindLimitOrder  Kind = "limit-order"
	KindMarketOrder Kind = "market-order"
	KindCancelOrder Kind = "cancel-order"
	KindLeverage    Kind = "leverage"
	KindTPSL        Kind = "tp-sl"
)

// State is a position inside a flow.
type State string

const (
	AwaitingPublicKey       State = "awaiting_public_key"
	AwaitingAgentKey        State = "awaiting_agent_key"
	AwaitingSymbol          State = "awaiting_symbol"
	AwaitingSide            State = "awaiting_side"
	AwaitingPrice           State = "awaiting_price"
	AwaitingAmount          State = "awaiting_amount"
	AwaitingIdentifier      State = "awaiting_identifier"
	AwaitingValue           State = "awaiting_value"
	AwaitingType            State = "awaiting_type"
	AwaitingTakeProfitPrice State = "awaiting_take_profit_price"
	AwaitingStopLossPrice   State = "awaiting_stop_loss_price"

	// Submitted and Cancelled are terminal.
	Submitted State = "submitted"
	Cancelled State = "cancelled"
)

// CancelToken aborts any flow from any non-terminal state.
const CancelToken = "cancel"

var (
	ErrUnknownFlow   = errors.New("unknown flow")
	ErrUnknownState  = errors.New("state does not belong to flow")
	ErrSessionClosed = errors.New("session already finished")
)

// Session is the in-progress record for one user. Fields only grow until
// the session reaches a terminal state.
type Session struct {
	UserID    int64
	Kind      Kind
	State     State
	Fields    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the session has finished.
func (s Session) Terminal() bool {
	return s.State == Submitted || s.State == Cancelled
}

func (s Session) clone() Session {
	c := s
	c.Fields = make(map[string]string, len(s.Fields)+1)
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	return c
}

// LogValue implements slog.LogValuer.
func (s Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("user_id", s.UserID),
		slog.String("flow", string(s.Kind)),
		slog.String("state", string(s.State)),
		slog.Int("fields", len(s.Fields)),
	)
}

// EffectKind tells the caller what to do after a transition.
type EffectKind int

const (
	// EffectPrompt asks the user for the field named in the prompt.
	EffectPrompt EffectKind = iota + 1
	// EffectSubmit hands a completed submission to the caller.
	EffectSubmit
	// EffectCancelled reports that the flow was abandoned.
	EffectCancelled
)

// Option is a suggested answer, rendered as a button where the transport can.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Prompt is what the user sees next.
type Prompt struct {
	Text    string
	Options []Option
}

// Effect is the outcome of a transition.
type Effect struct {
	Kind       EffectKind
	Prompt     Prompt
	Submission *Submission
}

// Submission is the completed result of a flow. Connect flows carry
// ConnectInput; all others carry a validated Payload.
type Submission struct {
	Kind    Kind
	Payload domain.Payload
	Connect *ConnectInput
}

// ConnectInput holds the onboarding keys. AgentSecret is empty for a
// read-only connection.
type ConnectInput struct {
	AccountPublicKey string
	AgentSecret      string
}

func (c ConnectInput) String() string {
	return fmt.Sprintf("ConnectInput{account=%s, agent_secret=%s}", c.AccountPublicKey, redacted(c.AgentSecret))
}

// LogValue implements slog.LogValuer.
func (c ConnectInput) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account", c.AccountPublicKey),
		slog.String("agent_secret", redacted(c.AgentSecret)),
	)
}

func redacted(s string) string {
	if s == "" {
		return "<none>"
	}
	return "[REDACTED]"
}

// Machine runs the flow tables.
type Machine struct {
	now   func() time.Time
	newID func() string
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock overrides the session clock.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides the client_order_id generator.
func WithIDGenerator(newID func() string) MachineOption {
	return func(m *Machine) { m.newID = newID }
}

// NewMachine creates a state machine.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsCancel reports whether input is the cancellation token.
func IsCancel(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	return s == CancelToken || s == "/"+CancelToken
}

// Start opens a new session of kind for userID and returns the first prompt.
func (m *Machine) Start(userID int64, kind Kind) (Session, Effect, error) {
	def, ok := definitions[kind]
	if !ok {
		return Session{}, Effect{}, fmt.Errorf("%w: %q", ErrUnknownFlow, kind)
	}
	now := m.now()
	s := Session{
		UserID:    userID,
		Kind:      kind,
		State:     def.steps[0].state,
		Fields:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s, Effect{Kind: EffectPrompt, Prompt: def.steps[0].prompt}, nil
}

// Step applies one user input to s. On a *ValidationError the returned
// session is s unchanged and the effect re-prompts for the same field.
func (m *Machine) Step(s Session, input string) (Session, Effect, error) {
	if s.Terminal() {
		return s, Effect{}, ErrSessionClosed
	}
	def, ok := definitions[s.Kind]
	if !ok {
		return s, Effect{}, fmt.Errorf("%w: %q", ErrUnknownFlow, s.Kind)
	}
	idx := def.index(s.State)
	if idx < 0 {
		return s, Effect{}, fmt.Errorf("%w: %s in %s", ErrUnknownState, s.State, s.Kind)
	}

	if IsCancel(input) {
		return Session{
				UserID:    s.UserID,
				Kind:      s.Kind,
				State:     Cancelled,
				CreatedAt: s.CreatedAt,
				UpdatedAt: m.now(),
			}, Effect{
				Kind:   EffectCancelled,
				Prompt: Prompt{Text: def.title + " cancelled."},
			}, nil
	}

	st := def.steps[idx]
	value, err := st.parse(strings.TrimSpace(input))
	if err != nil {
		return s, Effect{Kind: EffectPrompt, Prompt: st.prompt}, &ValidationError{Field: st.field, State: s.State, Reason: err.Error()}
	}

	next := s.clone()
	next.UpdatedAt = m.now()
	var secret string
	if st.secret {
		secret = value
	} else {
		next.Fields[st.field] = value
	}

	if n := def.nextIndex(idx, next.Fields); n < len(def.steps) {
		next.State = def.steps[n].state
		return next, Effect{Kind: EffectPrompt, Prompt: def.steps[n].prompt}, nil
	}

	sub, err := def.build(next.Fields, secret, m.newID)
	if err != nil {
		return s, Effect{Kind: EffectPrompt, Prompt: st.prompt}, &ValidationError{Field: st.field, State: s.State, Reason: err.Error()}
	}
	sub.Kind = s.Kind
	next.State = Submitted
	return next, Effect{Kind: EffectSubmit, Submission: &sub}, nil
}

// ValidationError reports input rejected by the current step. It is
// recoverable: the state does not advance.
type ValidationError struct {
	Field  string
	State  State
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
