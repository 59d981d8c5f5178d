// Package bot routes chat messages through the per-user flow state machine
// and runs the resulting actions against Pacifica on the worker pool.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashureev/pacifica-bot/internal/credentials"
	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/envelope"
	"github.com/ashureev/pacifica-bot/internal/flow"
	"github.com/ashureev/pacifica-bot/internal/metrics"
	"github.com/ashureev/pacifica-bot/internal/pacifica"
	"github.com/ashureev/pacifica-bot/internal/session"
	"github.com/ashureev/pacifica-bot/internal/worker"
)

// Message is one inbound chat message. Channel names the transport it came
// from so later replies can go back the same way.
type Message struct {
	UserID  int64
	Channel string
	Profile domain.Profile
	Text    string
}

// Reply is one outbound chat message. Options are suggested answers the
// transport may render as buttons; choosing one sends its Value as text.
type Reply struct {
	Text    string        `json:"text"`
	Options []flow.Option `json:"options,omitempty"`
}

// Notifier delivers replies produced after Handle has returned.
type Notifier interface {
	Notify(ctx context.Context, userID int64, r Reply) error
}

// Credentials is the credential custody the dispatcher relies on.
type Credentials interface {
	Connect(ctx context.Context, req credentials.ConnectRequest) (*domain.UserCredential, error)
	Get(ctx context.Context, userID int64) (*domain.UserCredential, error)
	Signer(ctx context.Context, userID int64) (envelope.Signer, error)
	Delete(ctx context.Context, userID int64) (bool, error)
}

// Exchange is the Pacifica API surface the dispatcher uses.
type Exchange interface {
	Submit(ctx context.Context, env *envelope.Envelope) (*pacifica.SubmitResult, error)
	Account(ctx context.Context, account string) (*pacifica.Account, error)
	Positions(ctx context.Context, account string) ([]pacifica.Position, error)
	Orders(ctx context.Context, account, symbol string) ([]pacifica.Order, error)
	Settings(ctx context.Context, account string) ([]pacifica.AccountSetting, error)
	Subaccounts(ctx context.Context, account string) ([]pacifica.Subaccount, error)
	Markets(ctx context.Context) ([]pacifica.Market, error)
}

// PriceSource serves the price board.
type PriceSource interface {
	Prices(ctx context.Context) ([]pacifica.Price, error)
}

// Queue accepts background jobs.
type Queue interface {
	Submit(job worker.Job) error
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Machine     *flow.Machine
	Sessions    *session.Registry
	Credentials Credentials
	Exchange    Exchange
	Prices      PriceSource
	Builder     *envelope.Builder
	Queue       Queue
	Notifier    Notifier
}

// Dispatcher handles chat messages for every transport.
type Dispatcher struct {
	machine  *flow.Machine
	sessions *session.Registry
	creds    Credentials
	api      Exchange
	prices   PriceSource
	builder  *envelope.Builder
	queue    Queue
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps Deps, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Machine == nil {
		deps.Machine = flow.NewMachine()
	}
	if deps.Builder == nil {
		deps.Builder = envelope.NewBuilder()
	}
	return &Dispatcher{
		machine:  deps.Machine,
		sessions: deps.Sessions,
		creds:    deps.Credentials,
		api:      deps.Exchange,
		prices:   deps.Prices,
		builder:  deps.Builder,
		queue:    deps.Queue,
		notifier: deps.Notifier,
		logger:   logger,
	}
}

// Handle processes one message and returns the replies to send right away.
// Results of blocking work are delivered later through the Notifier. The
// message text is never logged since it may carry a secret key.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) []Reply {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	if r, ok := d.notifier.(Router); ok && msg.Channel != "" {
		r.Route(msg.UserID, msg.Channel)
	}
	if cmd, arg, ok := parseCommand(text); ok && !flow.IsCancel(text) {
		return d.command(msg, cmd, arg)
	}
	return d.input(msg, text)
}

func parseCommand(text string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(text[1:], " ")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

func (d *Dispatcher) command(msg Message, cmd, arg string) []Reply {
	if kind, ok := flowCommands[cmd]; ok {
		return d.startFlow(msg.UserID, kind)
	}
	if v, ok := views[cmd]; ok {
		return d.view(msg.UserID, cmd, arg, v)
	}

	switch cmd {
	case "start", "help":
		return []Reply{helpReply()}
	case "cancelall":
		return d.cancelAll(msg.UserID, arg)
	case "disconnect":
		return d.disconnect(msg.UserID)
	}
	return text("Unknown command. Send /help to see what I can do.")
}

// input feeds free text to the user's active flow.
func (d *Dispatcher) input(msg Message, in string) []Reply {
	var (
		active  bool
		kind    flow.Kind
		eff     flow.Effect
		stepErr error
	)
	d.sessions.Update(msg.UserID, func(cur *flow.Session) *flow.Session {
		if cur == nil {
			return nil
		}
		active = true
		kind = cur.Kind
		next, e, err := d.machine.Step(*cur, in)
		eff, stepErr = e, err
		var ve *flow.ValidationError
		if err != nil && !errors.As(err, &ve) {
			return nil
		}
		return &next
	})
	d.updateGauge()

	if !active {
		if flow.IsCancel(in) {
			return text("Nothing to cancel.")
		}
		return text("No action in progress. Send /help to see what I can do.")
	}

	var ve *flow.ValidationError
	switch {
	case errors.As(stepErr, &ve):
		metrics.ValidationErrors.WithLabelValues(ve.Field).Inc()
		return []Reply{{Text: "❌ " + capitalize(ve.Reason) + ".\n\n" + eff.Prompt.Text, Options: eff.Prompt.Options}}
	case stepErr != nil:
		d.logger.Error("Flow step failed", "user_id", msg.UserID, "error", stepErr)
		return text("Something went wrong. Please start again.")
	}

	switch eff.Kind {
	case flow.EffectCancelled:
		metrics.Flows.WithLabelValues(string(kind), "cancelled").Inc()
		return text("❌ " + eff.Prompt.Text)
	case flow.EffectSubmit:
		metrics.Flows.WithLabelValues(string(kind), "submitted").Inc()
		return d.submit(msg, eff.Submission)
	default:
		return []Reply{promptReply(eff.Prompt)}
	}
}

// startFlow opens a flow. Trading flows first check in the background that
// the user can sign.
func (d *Dispatcher) startFlow(userID int64, kind flow.Kind) []Reply {
	if kind == flow.KindConnect {
		return d.openSession(userID, kind)
	}

	err := d.enqueue("start "+string(kind), userID, func(ctx context.Context) {
		cred, err := d.creds.Get(ctx, userID)
		if err == nil && !cred.CanTrade() {
			err = credentials.ErrReadOnly
		}
		if err != nil {
			d.notify(ctx, userID, Reply{Text: describeError(err)})
			return
		}
		for _, r := range d.openSession(userID, kind) {
			d.notify(ctx, userID, r)
		}
	})
	if err != nil {
		return text(describeError(err))
	}
	return nil
}

// openSession replaces any unfinished flow with a new one of kind.
func (d *Dispatcher) openSession(userID int64, kind flow.Kind) []Reply {
	var (
		eff      flow.Effect
		startErr error
	)
	d.sessions.Update(userID, func(*flow.Session) *flow.Session {
		s, e, err := d.machine.Start(userID, kind)
		if err != nil {
			startErr = err
			return nil
		}
		eff = e
		return &s
	})
	d.updateGauge()

	if startErr != nil {
		d.logger.Error("Flow start failed", "user_id", userID, "flow", kind, "error", startErr)
		return text("Something went wrong. Please try again.")
	}
	metrics.Flows.WithLabelValues(string(kind), "started").Inc()
	d.logger.Info("Flow started", "user_id", userID, "flow", kind)

	r := promptReply(eff.Prompt)
	r.Text = flow.Title(kind) + "\n\n" + r.Text
	return []Reply{r}
}

// submit queues the terminal work of a finished flow. The session is
// already cleared at this point.
func (d *Dispatcher) submit(msg Message, sub *flow.Submission) []Reply {
	var (
		run       func(ctx context.Context)
		immediate string
	)
	if sub.Connect != nil {
		input := *sub.Connect
		profile := msg.Profile
		profile.TelegramID = msg.UserID
		run = func(ctx context.Context) { d.connect(ctx, profile, input) }
		immediate = "🔄 Saving credentials..."
	} else {
		payload := sub.Payload
		run = func(ctx context.Context) { d.execute(ctx, msg.UserID, payload) }
		immediate = summarize(payload) + "\n\n🔄 Submitting..."
	}

	if err := d.enqueue(string(sub.Kind), msg.UserID, run); err != nil {
		return text(describeError(err))
	}
	return text(immediate)
}

func (d *Dispatcher) connect(ctx context.Context, profile domain.Profile, input flow.ConnectInput) {
	cred, err := d.creds.Connect(ctx, credentials.ConnectRequest{
		Profile:          profile,
		AccountPublicKey: input.AccountPublicKey,
		AgentSecret:      input.AgentSecret,
	})
	if err != nil {
		d.logger.Warn("Wallet connection failed", "user_id", profile.TelegramID, "error", err)
		d.notify(ctx, profile.TelegramID, Reply{Text: describeError(err)})
		return
	}
	d.notify(ctx, profile.TelegramID, Reply{Text: formatConnected(cred), Options: menuOptions})
}

// execute signs and sends one action. The envelope timestamp is taken here,
// right before sending.
func (d *Dispatcher) execute(ctx context.Context, userID int64, p domain.Payload) {
	action := p.Action()

	signer, err := d.creds.Signer(ctx, userID)
	if err != nil {
		d.fail(ctx, userID, action, err)
		return
	}
	env, err := d.builder.Build(p, signer)
	if err != nil {
		d.fail(ctx, userID, action, err)
		return
	}
	res, err := d.api.Submit(ctx, env)
	if err != nil {
		d.fail(ctx, userID, action, err)
		return
	}

	metrics.Actions.WithLabelValues(string(action), "ok").Inc()
	d.logger.Info("Action submitted", "user_id", userID, "action", action, "order_id", res.OrderID)
	d.notify(ctx, userID, Reply{Text: formatResult(p, res), Options: menuOptions})
}

func (d *Dispatcher) fail(ctx context.Context, userID int64, action domain.ActionType, err error) {
	metrics.Actions.WithLabelValues(string(action), errorClass(err)).Inc()
	d.logger.Warn("Action failed", "user_id", userID, "action", action, "error", err)
	d.notify(ctx, userID, Reply{Text: describeError(err), Options: menuOptions})
}

func (d *Dispatcher) cancelAll(userID int64, arg string) []Reply {
	p := domain.CancelAllOrders{AllSymbols: true}
	if arg != "" {
		p = domain.CancelAllOrders{Symbol: domain.NormalizeSymbol(arg)}
	}
	if err := domain.Validate(p); err != nil {
		return text("❌ Usage: /cancelall or /cancelall SYMBOL")
	}
	if err := d.enqueue(string(p.Action()), userID, func(ctx context.Context) { d.execute(ctx, userID, p) }); err != nil {
		return text(describeError(err))
	}
	return text(summarize(p) + "\n\n🔄 Submitting...")
}

func (d *Dispatcher) disconnect(userID int64) []Reply {
	d.sessions.Clear(userID)
	d.updateGauge()

	err := d.enqueue("disconnect", userID, func(ctx context.Context) {
		existed, err := d.creds.Delete(ctx, userID)
		switch {
		case err != nil:
			d.logger.Error("Credential delete failed", "user_id", userID, "error", err)
			d.notify(ctx, userID, Reply{Text: describeError(err)})
		case existed:
			d.notify(ctx, userID, Reply{Text: "🗑 Your wallet data has been deleted."})
		default:
			d.notify(ctx, userID, Reply{Text: "No wallet data was stored."})
		}
	})
	if err != nil {
		return text(describeError(err))
	}
	return nil
}

func (d *Dispatcher) enqueue(name string, userID int64, run func(ctx context.Context)) error {
	return d.queue.Submit(worker.Job{Name: name, UserID: userID, Run: run})
}

func (d *Dispatcher) notify(ctx context.Context, userID int64, r Reply) {
	if d.notifier == nil {
		d.logger.Warn("No notifier configured, dropping reply", "user_id", userID)
		return
	}
	if err := d.notifier.Notify(ctx, userID, r); err != nil {
		d.logger.Warn("Failed to deliver reply", "user_id", userID, "error", err)
	}
}

func (d *Dispatcher) updateGauge() {
	metrics.ActiveSessions.Set(float64(d.sessions.Len()))
}

func text(s string) []Reply {
	return []Reply{{Text: s}}
}

func promptReply(p flow.Prompt) Reply {
	return Reply{Text: p.Text, Options: p.Options}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// errorClass labels an error for metrics.
func errorClass(err error) string {
	var apiErr *pacifica.APIError
	switch {
	case errors.Is(err, pacifica.ErrEnvelopeExpired):
		return "expired"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, credentials.ErrNotConnected), errors.Is(err, credentials.ErrReadOnly):
		return "not_authorized"
	case errors.Is(err, domain.ErrInvalidPayload):
		return "invalid"
	default:
		return "key_error"
	}
}
