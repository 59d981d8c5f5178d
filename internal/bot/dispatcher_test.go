package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pacifica-bot/internal/credentials"
	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/envelope"
	"github.com/ashureev/pacifica-bot/internal/flow"
	"github.com/ashureev/pacifica-bot/internal/pacifica"
	"github.com/ashureev/pacifica-bot/internal/session"
	"github.com/ashureev/pacifica-bot/internal/signing"
	"github.com/ashureev/pacifica-bot/internal/store"
	"github.com/ashureev/pacifica-bot/internal/vault"
	"github.com/ashureev/pacifica-bot/internal/worker"
)

const userID = int64(1001)

// inlineQueue runs jobs on the caller's goroutine.
type inlineQueue struct{ err error }

func (q inlineQueue) Submit(job worker.Job) error {
	if q.err != nil {
		return q.err
	}
	job.Run(context.Background())
	return nil
}

type recorder struct {
	mu      sync.Mutex
	replies map[int64][]Reply
}

func (r *recorder) Notify(_ context.Context, id int64, reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replies == nil {
		r.replies = make(map[int64][]Reply)
	}
	r.replies[id] = append(r.replies[id], reply)
	return nil
}

func (r *recorder) last(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs := r.replies[id]
	if len(rs) == 0 {
		return ""
	}
	return rs[len(rs)-1].Text
}

type fakeExchange struct {
	mu        sync.Mutex
	submitted []*envelope.Envelope
	err       error
	positions []pacifica.Position
}

func (f *fakeExchange) Submit(_ context.Context, env *envelope.Envelope) (*pacifica.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, env)
	if f.err != nil {
		return nil, f.err
	}
	return &pacifica.SubmitResult{OrderID: 777, CancelledCount: 3}, nil
}

func (f *fakeExchange) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func (f *fakeExchange) Account(context.Context, string) (*pacifica.Account, error) {
	return &pacifica.Account{Balance: "1000", AccountEquity: "1010", AvailableToSpend: "900", TotalMarginUsed: "100", PositionsCount: 1}, nil
}

func (f *fakeExchange) Positions(context.Context, string) ([]pacifica.Position, error) {
	return f.positions, nil
}

func (f *fakeExchange) Orders(context.Context, string, string) ([]pacifica.Order, error) {
	return nil, nil
}

func (f *fakeExchange) Settings(context.Context, string) ([]pacifica.AccountSetting, error) {
	return []pacifica.AccountSetting{{Symbol: "BTC", Leverage: 10}}, nil
}

func (f *fakeExchange) Subaccounts(context.Context, string) ([]pacifica.Subaccount, error) {
	return nil, nil
}

func (f *fakeExchange) Markets(context.Context) ([]pacifica.Market, error) {
	return []pacifica.Market{{Symbol: "BTC", MaxLeverage: 50, TickSize: "1", LotSize: "0.00001"}}, nil
}

type staticPrices []pacifica.Price

func (p staticPrices) Prices(context.Context) ([]pacifica.Price, error) { return p, nil }

type harness struct {
	d       *Dispatcher
	notes   *recorder
	api     *fakeExchange
	creds   *credentials.Service
	account signing.Keypair
	agent   signing.Keypair
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var key vault.MasterKey
	for i := range key {
		key[i] = byte(i + 1)
	}
	creds := credentials.NewService(store.NewMemory(), key, logger)
	notes := &recorder{}
	api := &fakeExchange{}

	account, err := signing.NewKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	agent, err := signing.NewKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	d := NewDispatcher(Deps{
		Sessions:    session.NewRegistry(time.Minute),
		Credentials: creds,
		Exchange:    api,
		Prices:      staticPrices{{Symbol: "BTC", Mark: "95000", Mid: "95001"}},
		Queue:       inlineQueue{},
		Notifier:    notes,
	}, logger)

	return &harness{d: d, notes: notes, api: api, creds: creds, account: account, agent: agent}
}

func (h *harness) send(t *testing.T, text string) []Reply {
	t.Helper()
	return h.d.Handle(context.Background(), Message{UserID: userID, Profile: domain.Profile{Username: "trader"}, Text: text})
}

func (h *harness) connect(t *testing.T, agentSecret string) {
	t.Helper()
	h.send(t, "/connect")
	h.send(t, h.account.PublicKey().String())
	h.send(t, agentSecret)
	if !strings.Contains(h.notes.last(userID), "Wallet connected") {
		t.Fatalf("Expected connection confirmation, got %q", h.notes.last(userID))
	}
}

func only(t *testing.T, rs []Reply) Reply {
	t.Helper()
	if len(rs) != 1 {
		t.Fatalf("Expected one reply, got %d: %+v", len(rs), rs)
	}
	return rs[0]
}

func TestLimitOrderSubmitsSignedEnvelope(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.connect(t, h.agent.EncodeSecret())

	h.send(t, "/limit")
	if !strings.Contains(h.notes.last(userID), "Limit order") {
		t.Fatalf("Expected limit order prompt, got %q", h.notes.last(userID))
	}
	h.send(t, "btc")
	h.send(t, "buy")
	h.send(t, "95000")
	r := only(t, h.send(t, "0.010"))
	if !strings.Contains(r.Text, "Submitting") || !strings.Contains(r.Text, "Amount: 0.01") {
		t.Errorf("Expected submission summary, got %q", r.Text)
	}

	if h.api.calls() != 1 {
		t.Fatalf("Expected 1 submit, got %d", h.api.calls())
	}
	env := h.api.submitted[0]
	if env.Action != domain.ActionCreateLimitOrder {
		t.Errorf("Expected create_limit_order, got %s", env.Action)
	}
	if env.Body["account"] != h.account.PublicKey().String() || env.Body["agent_wallet"] != h.agent.PublicKey().String() {
		t.Errorf("Expected account and agent wallet in body, got %v", env.Body)
	}
	if err := envelope.Verify(env.Action, env.Body, h.agent.PublicKey()); err != nil {
		t.Errorf("Expected signature to verify, got %v", err)
	}
	if !strings.Contains(h.notes.last(userID), "Order placed") {
		t.Errorf("Expected confirmation, got %q", h.notes.last(userID))
	}
	if _, ok := h.d.sessions.Get(userID); ok {
		t.Error("Expected session to be cleared after submit")
	}
}

func TestCancelMidFlowSubmitsNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.connect(t, h.agent.EncodeSecret())

	h.send(t, "/limit")
	h.send(t, "BTC")
	h.send(t, "bid")
	h.send(t, "95000")
	r := only(t, h.send(t, "cancel"))
	if r.Text != "❌ Limit order cancelled." {
		t.Errorf("Expected cancellation, got %q", r.Text)
	}
	if h.api.calls() != 0 {
		t.Errorf("Expected no submit, got %d", h.api.calls())
	}
	if _, ok := h.d.sessions.Get(userID); ok {
		t.Error("Expected session to be cleared")
	}

	r = only(t, h.send(t, "/cancel"))
	if r.Text != "Nothing to cancel." {
		t.Errorf("Expected nothing to cancel, got %q", r.Text)
	}
}

func TestInvalidInputRepromptsSameStep(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.connect(t, h.agent.EncodeSecret())

	h.send(t, "/limit")
	h.send(t, "ETH")
	h.send(t, "ask")
	r := only(t, h.send(t, "-5"))
	if !strings.HasPrefix(r.Text, "❌ ") || !strings.Contains(r.Text, "limit price") {
		t.Errorf("Expected error plus price prompt, got %q", r.Text)
	}

	s, ok := h.d.sessions.Get(userID)
	if !ok {
		t.Fatal("Expected session to survive a validation error")
	}
	if s.State != flow.AwaitingPrice {
		t.Errorf("Expected AwaitingPrice, got %s", s.State)
	}
	if s.Fields[flow.FieldSymbol] != "ETH" || s.Fields[flow.FieldSide] != "ask" {
		t.Errorf("Expected fields kept, got %v", s.Fields)
	}
}

func TestReadOnlyUserCannotTrade(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.connect(t, "skip")
	if !strings.Contains(h.notes.last(userID), "Read-only") {
		t.Errorf("Expected read-only notice, got %q", h.notes.last(userID))
	}

	h.send(t, "/market")
	if !strings.Contains(h.notes.last(userID), "read-only") {
		t.Errorf("Expected read-only rejection, got %q", h.notes.last(userID))
	}
	if _, ok := h.d.sessions.Get(userID); ok {
		t.Error("Expected no session for a read-only user")
	}

	h.send(t, "/cancelall")
	if h.api.calls() != 0 {
		t.Errorf("Expected no submit, got %d", h.api.calls())
	}
}

func TestNotConnectedUser(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(t, "/leverage")
	if !strings.Contains(h.notes.last(userID), "/connect") {
		t.Errorf("Expected connect hint, got %q", h.notes.last(userID))
	}
	h.send(t, "/positions")
	if !strings.Contains(h.notes.last(userID), "/connect") {
		t.Errorf("Expected connect hint, got %q", h.notes.last(userID))
	}
}

func TestExpiredEnvelopeAsksToResubmit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.connect(t, h.agent.EncodeSecret())
	h.api.err = &pacifica.APIError{Endpoint: "orders/create_market", Status: 400, Message: "Signature expired"}

	h.send(t, "/market")
	h.send(t, "SOL")
	h.send(t, "sell")
	h.send(t, "2")

	if h.api.calls() != 1 {
		t.Fatalf("Expected exactly one attempt, got %d", h.api.calls())
	}
	if !strings.Contains(h.notes.last(userID), "resubmit") {
		t.Errorf("Expected resubmit hint, got %q", h.notes.last(userID))
	}
}

func TestCancelAllCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.connect(t, h.agent.EncodeSecret())

	r := only(t, h.send(t, "/cancelall eth"))
	if !strings.Contains(r.Text, "ETH") {
		t.Errorf("Expected symbol in summary, got %q", r.Text)
	}
	if h.api.calls() != 1 || h.api.submitted[0].Body["symbol"] != "ETH" {
		t.Fatalf("Expected one ETH cancel_all, got %+v", h.api.submitted)
	}
	if !strings.Contains(h.notes.last(userID), "Cancelled 3") {
		t.Errorf("Expected cancelled count, got %q", h.notes.last(userID))
	}

	r = only(t, h.send(t, "/cancelall b-t"))
	if !strings.Contains(r.Text, "Usage") {
		t.Errorf("Expected usage, got %q", r.Text)
	}
}

func TestDisconnectDeletesCredentials(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.connect(t, h.agent.EncodeSecret())
	h.send(t, "/limit")

	h.send(t, "/disconnect")
	if !strings.Contains(h.notes.last(userID), "deleted") {
		t.Errorf("Expected deletion notice, got %q", h.notes.last(userID))
	}
	if _, ok := h.d.sessions.Get(userID); ok {
		t.Error("Expected session cleared on disconnect")
	}
	if _, err := h.creds.Get(context.Background(), userID); !errors.Is(err, credentials.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	h.send(t, "/disconnect")
	if !strings.Contains(h.notes.last(userID), "No wallet data") {
		t.Errorf("Expected nothing stored, got %q", h.notes.last(userID))
	}
}

func TestViews(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.send(t, "/prices btc")
	if !strings.Contains(h.notes.last(userID), "Mark: $95000") {
		t.Errorf("Expected BTC detail, got %q", h.notes.last(userID))
	}
	h.send(t, "/markets")
	if !strings.Contains(h.notes.last(userID), "BTC max 50x") {
		t.Errorf("Expected market list, got %q", h.notes.last(userID))
	}

	h.connect(t, "skip")
	h.send(t, "/account")
	if !strings.Contains(h.notes.last(userID), "Balance: $1000") {
		t.Errorf("Expected account summary, got %q", h.notes.last(userID))
	}
	h.send(t, "/positions")
	if !strings.Contains(h.notes.last(userID), "No open positions") {
		t.Errorf("Expected empty positions, got %q", h.notes.last(userID))
	}
	h.send(t, "/settings")
	if !strings.Contains(h.notes.last(userID), "BTC: 10x cross") {
		t.Errorf("Expected settings, got %q", h.notes.last(userID))
	}
}

func TestCommandsAndFreeText(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	if r := only(t, h.send(t, "/help@pacifica_bot")); !strings.Contains(r.Text, "/limit") || len(r.Options) == 0 {
		t.Errorf("Expected help with menu, got %+v", r)
	}
	if r := only(t, h.send(t, "/bogus")); !strings.Contains(r.Text, "Unknown command") {
		t.Errorf("Expected unknown command, got %q", r.Text)
	}
	if r := only(t, h.send(t, "hello")); !strings.Contains(r.Text, "No action in progress") {
		t.Errorf("Expected idle reply, got %q", r.Text)
	}
	if rs := h.send(t, "   "); rs != nil {
		t.Errorf("Expected no reply to blank text, got %+v", rs)
	}
}

func TestBusyQueue(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.d.queue = inlineQueue{err: worker.ErrQueueFull}

	r := only(t, h.send(t, "/limit"))
	if !strings.Contains(r.Text, "busy") {
		t.Errorf("Expected busy reply, got %q", r.Text)
	}
}

func TestSecretNeverLogged(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var logs strings.Builder
	h.d.logger = slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	secret := h.agent.EncodeSecret()
	h.connect(t, secret)
	if strings.Contains(logs.String(), secret) {
		t.Error("Expected agent secret to stay out of logs")
	}
}

func TestDescribeError(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"/connect":     credentials.ErrNotConnected,
		"read-only":    credentials.ErrReadOnly,
		"reconnect":    credentials.ErrKeyMismatch,
		"unlocked":     vault.ErrAuthenticationFailure,
		"resubmit":     &pacifica.APIError{Status: 400, Code: "ENVELOPE_EXPIRED"},
		"Could not":    &pacifica.APIError{Err: errors.New("dial tcp")},
		"Insufficient": &pacifica.APIError{Status: 400, Message: "Insufficient balance"},
		"busy":         worker.ErrPoolStopped,
		"went wrong":   errors.New("boom"),
	}
	for want, err := range cases {
		if got := describeError(err); !strings.Contains(got, want) {
			t.Errorf("describeError(%v) = %q, expected it to contain %q", err, got, want)
		}
	}
}
