package flow

import (
	"fmt"
	"strconv"

	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/google/uuid"
)

// Field names collected by the flows.
const (
	FieldAccountKey      = "account_public_key"
	FieldAgentKey        = "agent_secret"
	FieldSymbol          = "symbol"
	FieldSide            = "side"
	FieldPrice           = "price"
	FieldAmount          = "amount"
	FieldIdentifier      = "identifier"
	FieldLeverage        = "leverage"
	FieldTPSLType        = "tpsl_type"
	FieldTakeProfitPrice = "take_profit_price"
	FieldStopLossPrice   = "stop_loss_price"
)

const (
	tpslTakeProfit = "take_profit"
	tpslStopLoss   = "stop_loss"
	tpslBoth       = "both"
)

type step struct {
	state  State
	field  string
	prompt Prompt
	parse  func(string) (string, error)
	// secret values are handed to build but never kept in the session.
	secret bool
	skip   func(fields map[string]string) bool
}

type definition struct {
	kind  Kind
	title string
	steps []step
	build func(fields map[string]string, secret string, newID func() string) (Submission, error)
}

func (d definition) index(s State) int {
	for i, st := range d.steps {
		if st.state == s {
			return i
		}
	}
	return -1
}

func (d definition) nextIndex(i int, fields map[string]string) int {
	for i++; i < len(d.steps); i++ {
		if skip := d.steps[i].skip; skip == nil || !skip(fields) {
			return i
		}
	}
	return i
}

var symbolOptions = []Option{{"BTC", "BTC"}, {"ETH", "ETH"}, {"SOL", "SOL"}}

var sideOptions = []Option{{"Buy (bid)", "bid"}, {"Sell (ask)", "ask"}}

func cancelHint(text string) string {
	return text + "\n\nOr type \"cancel\" to stop."
}

func symbolStep(n string) step {
	return step{
		state:  AwaitingSymbol,
		field:  FieldSymbol,
		prompt: Prompt{Text: cancelHint(n + " Select a symbol or type one (e.g. BTC)."), Options: symbolOptions},
		parse:  parseSymbol,
	}
}

func sideStep(n string) step {
	return step{
		state:  AwaitingSide,
		field:  FieldSide,
		prompt: Prompt{Text: cancelHint(n + " Select side: bid to buy, ask to sell."), Options: sideOptions},
		parse:  parseSide,
	}
}

func amountStep(n string) step {
	return step{
		state:  AwaitingAmount,
		field:  FieldAmount,
		prompt: Prompt{Text: cancelHint(n + " Enter the amount (e.g. 0.01).")},
		parse:  parsePositive,
	}
}

var definitions = map[Kind]definition{
	KindConnect: {
		kind:  KindConnect,
		title: "Wallet connection",
		steps: []step{
			{
				state:  AwaitingPublicKey,
				field:  FieldAccountKey,
				prompt: Prompt{Text: cancelHint("Step 1/2: Send your main wallet public address.")},
				parse:  parseAccountKey,
			},
			{
				state: AwaitingAgentKey,
				field: FieldAgentKey,
				prompt: Prompt{
					Text:    cancelHint("Step 2/2: Send your agent wallet private key, or \"skip\" for read-only mode."),
					Options: []Option{{"Read-only", SkipToken}},
				},
				parse:  parseAgentKey,
				secret: true,
			},
		},
		build: func(fields map[string]string, secret string, _ func() string) (Submission, error) {
			return Submission{Connect: &ConnectInput{
				AccountPublicKey: fields[FieldAccountKey],
				AgentSecret:      secret,
			}}, nil
		},
	},
	KindLimitOrder: {
		kind:  KindLimitOrder,
		title: "Limit order",
		steps: []step{
			symbolStep("1/4"),
			sideStep("2/4"),
			{
				state:  AwaitingPrice,
				field:  FieldPrice,
				prompt: Prompt{Text: cancelHint("3/4 Enter the limit price (e.g. 95000).")},
				parse:  parsePositive,
			},
			amountStep("4/4"),
		},
		build: func(f map[string]string, _ string, newID func() string) (Submission, error) {
			return validated(domain.LimitOrder{
				Symbol:        f[FieldSymbol],
				Side:          domain.Side(f[FieldSide]),
				Price:         f[FieldPrice],
				Amount:        f[FieldAmount],
				TimeInForce:   domain.DefaultTimeInForce,
				ClientOrderID: newID(),
			})
		},
	},
	KindMarketOrder: {
		kind:  KindMarketOrder,
		title: "Market order",
		steps: []step{
			symbolStep("1/3"),
			sideStep("2/3"),
			amountStep("3/3"),
		},
		build: func(f map[string]string, _ string, newID func() string) (Submission, error) {
			return validated(domain.MarketOrder{
				Symbol:          f[FieldSymbol],
				Side:            domain.Side(f[FieldSide]),
				Amount:          f[FieldAmount],
				SlippagePercent: domain.DefaultSlippagePercent,
				ClientOrderID:   newID(),
			})
		},
	},
	KindCancelOrder: {
		kind:  KindCancelOrder,
		title: "Order cancellation",
		steps: []step{
			{
				state:  AwaitingIdentifier,
				field:  FieldIdentifier,
				prompt: Prompt{Text: cancelHint("Enter the symbol and the order ID or client order ID (UUID) to cancel (e.g. BTC 12345).")},
				parse:  parseIdentifier,
			},
		},
		build: func(f map[string]string, _ string, _ func() string) (Submission, error) {
			symbol, id := splitIdentifier(f[FieldIdentifier])
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				return validated(domain.CancelOrder{Symbol: symbol, OrderID: &n})
			}
			return validated(domain.CancelOrder{Symbol: symbol, ClientOrderID: id})
		},
	},
	KindLeverage: {
		kind:  KindLeverage,
		title: "Leverage update",
		steps: []step{
			symbolStep("1/2"),
			{
				state:  AwaitingValue,
				field:  FieldLeverage,
				prompt: Prompt{Text: cancelHint(fmt.Sprintf("2/2 Enter leverage (%d-%d).", domain.MinLeverage, domain.MaxLeverage))},
				parse:  parseLeverage,
			},
		},
		build: func(f map[string]string, _ string, _ func() string) (Submission, error) {
			lev, _ := strconv.Atoi(f[FieldLeverage])
			return validated(domain.UpdateLeverage{Symbol: f[FieldSymbol], Leverage: lev})
		},
	},
	KindTPSL: {
		kind:  KindTPSL,
		title: "TP/SL",
		steps: []step{
			symbolStep("1/4"),
			sideStep("2/4"),
			{
				state: AwaitingType,
				field: FieldTPSLType,
				prompt: Prompt{
					Text: cancelHint("3/4 What do you want to set?"),
					Options: []Option{
						{"Take profit", tpslTakeProfit},
						{"Stop loss", tpslStopLoss},
						{"Both", tpslBoth},
					},
				},
				parse: parseTPSLType,
			},
			{
				state:  AwaitingTakeProfitPrice,
				field:  FieldTakeProfitPrice,
				prompt: Prompt{Text: cancelHint("4/4 Enter the take-profit stop price.")},
				parse:  parsePositive,
				skip:   func(f map[string]string) bool { return f[FieldTPSLType] == tpslStopLoss },
			},
			{
				state:  AwaitingStopLossPrice,
				field:  FieldStopLossPrice,
				prompt: Prompt{Text: cancelHint("4/4 Enter the stop-loss stop price.")},
				parse:  parsePositive,
				skip:   func(f map[string]string) bool { return f[FieldTPSLType] == tpslTakeProfit },
			},
		},
		build: func(f map[string]string, _ string, newID func() string) (Submission, error) {
			p := domain.PositionTPSL{Symbol: f[FieldSymbol], Side: domain.Side(f[FieldSide])}
			if v, ok := f[FieldTakeProfitPrice]; ok {
				p.TakeProfit = &domain.TPSLLeg{StopPrice: v, ClientOrderID: newID()}
			}
			if v, ok := f[FieldStopLossPrice]; ok {
				p.StopLoss = &domain.TPSLLeg{StopPrice: v, ClientOrderID: newID()}
			}
			return validated(p)
		},
	},
}

func validated(p domain.Payload) (Submission, error) {
	if err := domain.Validate(p); err != nil {
		return Submission{}, err
	}
	return Submission{Payload: p}, nil
}

// Kinds lists every flow in a stable order.
func Kinds() []Kind {
	return []Kind{KindConnect, KindLimitOrder, KindMarketOrder, KindCancelOrder, KindLeverage, KindTPSL}
}

// ParseKind resolves a flow name.
func ParseKind(s string) (Kind, bool) {
	_, ok := definitions[Kind(s)]
	return Kind(s), ok
}

// Title returns the human-readable flow name.
func Title(k Kind) string {
	return definitions[k].title
}

// isClientOrderID reports whether s is a UUID client order id.
func isClientOrderID(s string) bool {
	return uuid.Validate(s) == nil
}
