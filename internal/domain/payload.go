package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ActionType is the signed operation name carried in the message "type" field.
type ActionType string

const (
	ActionCreateLimitOrder  ActionType = "create_limit_order"
	ActionCreateMarketOrder ActionType = "create_market_order"
	ActionCancelOrder       ActionType = "cancel_order"
	ActionCancelAllOrders   ActionType = "cancel_all_orders"
	ActionSetPositionTPSL   ActionType = "set_position_tpsl"
	ActionUpdateLeverage    ActionType = "update_leverage"
)

// Side is the order or position side.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

const (
	DefaultSlippagePercent = "0.5"
	DefaultTimeInForce     = "GTC"
	MinLeverage            = 1
	MaxLeverage            = 50
	// MaxDecimalLength bounds price and amount text before it is parsed.
	MaxDecimalLength = 32
)

// KnownSymbols are always accepted without the generic length rule.
var KnownSymbols = []string{"BTC", "ETH", "SOL"}

var (
	symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	// Plain notation only; exponents would let a short input expand to
	// millions of digits.
	decimalPattern = regexp.MustCompile(`^(\d+(\.\d+)?|\.\d+)$`)
)

// Payload is one member of the action payload union. Each implementation
// is validated with Validate before it reaches the envelope builder.
type Payload interface {
	Action() ActionType
}

// LimitOrder is the create_limit_order payload.
type LimitOrder struct {
	Symbol        string `json:"symbol" validate:"required,symbol"`
	Side          Side   `json:"side" validate:"required,oneof=bid ask"`
	Price         string `json:"price" validate:"required,positive_decimal"`
	Amount        string `json:"amount" validate:"required,positive_decimal"`
	ReduceOnly    bool   `json:"reduce_only"`
	TimeInForce   string `json:"tif" validate:"required,oneof=GTC IOC ALO"`
	ClientOrderID string `json:"client_order_id,omitempty" validate:"omitempty,uuid"`
}

func (LimitOrder) Action() ActionType { return ActionCreateLimitOrder }

// MarketOrder is the create_market_order payload.
type MarketOrder struct {
	Symbol          string `json:"symbol" validate:"required,symbol"`
	Side            Side   `json:"side" validate:"required,oneof=bid ask"`
	Amount          string `json:"amount" validate:"required,positive_decimal"`
	SlippagePercent string `json:"slippage_percent" validate:"required,positive_decimal"`
	ReduceOnly      bool   `json:"reduce_only"`
	ClientOrderID   string `json:"client_order_id,omitempty" validate:"omitempty,uuid"`
}

func (MarketOrder) Action() ActionType { return ActionCreateMarketOrder }

// CancelOrder identifies one order on a market either by exchange id or
// by client id.
type CancelOrder struct {
	Symbol        string `json:"symbol" validate:"required,symbol"`
	OrderID       *int64 `json:"order_id,omitempty" validate:"omitempty,gt=0"`
	ClientOrderID string `json:"client_order_id,omitempty" validate:"omitempty,uuid"`
}

func (CancelOrder) Action() ActionType { return ActionCancelOrder }

func (c CancelOrder) check() error {
	if (c.OrderID == nil) == (c.ClientOrderID == "") {
		return errors.New("exactly one of order_id or client_order_id is required")
	}
	return nil
}

// CancelAllOrders cancels every open order, optionally for one symbol.
type CancelAllOrders struct {
	AllSymbols        bool   `json:"all_symbols"`
	ExcludeReduceOnly bool   `json:"exclude_reduce_only"`
	Symbol            string `json:"symbol,omitempty" validate:"omitempty,symbol"`
}

func (CancelAllOrders) Action() ActionType { return ActionCancelAllOrders }

func (c CancelAllOrders) check() error {
	if !c.AllSymbols && c.Symbol == "" {
		return errors.New("symbol is required unless all_symbols is set")
	}
	return nil
}

// UpdateLeverage sets the leverage for one market.
type UpdateLeverage struct {
	Symbol   string `json:"symbol" validate:"required,symbol"`
	Leverage int    `json:"leverage" validate:"min=1,max=50"`
}

func (UpdateLeverage) Action() ActionType { return ActionUpdateLeverage }

// TPSLLeg is one take-profit or stop-loss order attached to a position.
type TPSLLeg struct {
	StopPrice     string `json:"stop_price" validate:"required,positive_decimal"`
	LimitPrice    string `json:"limit_price,omitempty" validate:"omitempty,positive_decimal"`
	ClientOrderID string `json:"client_order_id,omitempty" validate:"omitempty,uuid"`
}

// PositionTPSL is the set_position_tpsl payload. At least one leg is set.
type PositionTPSL struct {
	Symbol     string   `json:"symbol" validate:"required,symbol"`
	Side       Side     `json:"side" validate:"required,oneof=bid ask"`
	TakeProfit *TPSLLeg `json:"take_profit,omitempty"`
	StopLoss   *TPSLLeg `json:"stop_loss,omitempty"`
}

func (PositionTPSL) Action() ActionType { return ActionSetPositionTPSL }

func (p PositionTPSL) check() error {
	if p.TakeProfit == nil && p.StopLoss == nil {
		return errors.New("take_profit or stop_loss is required")
	}
	return nil
}

var (
	_ Payload = LimitOrder{}
	_ Payload = MarketOrder{}
	_ Payload = CancelOrder{}
	_ Payload = CancelAllOrders{}
	_ Payload = UpdateLeverage{}
	_ Payload = PositionTPSL{}
)

// ErrInvalidPayload wraps every payload validation failure.
var ErrInvalidPayload = errors.New("invalid payload")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return ValidSymbol(fl.Field().String())
	})
	_ = v.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		_, err := ParsePositiveDecimal(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks p against its field rules.
func Validate(p Payload) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidPayload, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if c, ok := p.(interface{ check() error }); ok {
		if err := c.check(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return nil
}

// NormalizeSymbol upper-cases and trims user input.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidSymbol accepts the known markets or any 2..10 character upper-case
// alphanumeric ticker.
func ValidSymbol(s string) bool {
	for _, k := range KnownSymbols {
		if s == k {
			return true
		}
	}
	return symbolPattern.MatchString(s)
}

// ParsePositiveDecimal parses s as a strictly positive decimal number in
// plain notation, such as "95000.5" or "0.01".
func ParsePositiveDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("empty number")
	}
	if len(s) > MaxDecimalLength {
		return decimal.Zero, fmt.Errorf("number longer than %d characters", MaxDecimalLength)
	}
	if !decimalPattern.MatchString(s) {
		return decimal.Zero, errors.New("not a plain decimal number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %w", err)
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.New("must be greater than zero")
	}
	return d, nil
}
