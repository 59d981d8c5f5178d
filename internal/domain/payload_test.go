package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidatePayloads(t *testing.T) {
	t.Parallel()

	orderID := int64(42)
	zeroID := int64(0)
	cid := uuid.NewString()

	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"limit ok", LimitOrder{Symbol: "BTC", Side: SideBid, Price: "95000", Amount: "0.01", TimeInForce: DefaultTimeInForce, ClientOrderID: cid}, false},
		{"limit negative price", LimitOrder{Symbol: "BTC", Side: SideBid, Price: "-5", Amount: "0.01", TimeInForce: DefaultTimeInForce}, true},
		{"limit bad side", LimitOrder{Symbol: "BTC", Side: "buy", Price: "1", Amount: "1", TimeInForce: DefaultTimeInForce}, true},
		{"limit bad tif", LimitOrder{Symbol: "BTC", Side: SideAsk, Price: "1", Amount: "1", TimeInForce: "FOK"}, true},
		{"market ok", MarketOrder{Symbol: "SOL", Side: SideAsk, Amount: "2", SlippagePercent: DefaultSlippagePercent}, false},
		{"market zero amount", MarketOrder{Symbol: "SOL", Side: SideAsk, Amount: "0", SlippagePercent: DefaultSlippagePercent}, true},
		{"market bad client id", MarketOrder{Symbol: "SOL", Side: SideAsk, Amount: "2", SlippagePercent: "1", ClientOrderID: "order_1"}, true},
		{"cancel by id", CancelOrder{Symbol: "BTC", OrderID: &orderID}, false},
		{"cancel by client id", CancelOrder{Symbol: "BTC", ClientOrderID: cid}, false},
		{"cancel missing symbol", CancelOrder{OrderID: &orderID}, true},
		{"cancel neither", CancelOrder{Symbol: "BTC"}, true},
		{"cancel both", CancelOrder{Symbol: "BTC", OrderID: &orderID, ClientOrderID: cid}, true},
		{"cancel zero id", CancelOrder{Symbol: "BTC", OrderID: &zeroID}, true},
		{"limit exponent price", LimitOrder{Symbol: "BTC", Side: SideBid, Price: "1e300000000", Amount: "0.01", TimeInForce: DefaultTimeInForce}, true},
		{"cancel all", CancelAllOrders{AllSymbols: true}, false},
		{"cancel all one symbol", CancelAllOrders{Symbol: "ETH"}, false},
		{"cancel all missing symbol", CancelAllOrders{}, true},
		{"leverage ok", UpdateLeverage{Symbol: "ETH", Leverage: 50}, false},
		{"leverage too high", UpdateLeverage{Symbol: "ETH", Leverage: 51}, true},
		{"leverage zero", UpdateLeverage{Symbol: "ETH", Leverage: 0}, true},
		{"tpsl take profit", PositionTPSL{Symbol: "BTC", Side: SideBid, TakeProfit: &TPSLLeg{StopPrice: "100000"}}, false},
		{"tpsl both", PositionTPSL{Symbol: "BTC", Side: SideBid, TakeProfit: &TPSLLeg{StopPrice: "100000"}, StopLoss: &TPSLLeg{StopPrice: "90000", LimitPrice: "89900"}}, false},
		{"tpsl none", PositionTPSL{Symbol: "BTC", Side: SideBid}, true},
		{"tpsl bad leg", PositionTPSL{Symbol: "BTC", Side: SideBid, StopLoss: &TPSLLeg{StopPrice: "abc"}}, true},
		{"lowercase symbol", UpdateLeverage{Symbol: "btc", Leverage: 2}, true},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.payload)
			if tt.wantErr && !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Expected ErrInvalidPayload, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestValidSymbol(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"BTC", "ETH", "SOL", "DOGE", "AB", "ABCDEFGHIJ", "1000PEPE"} {
		if !ValidSymbol(s) {
			t.Errorf("Expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "A", "ABCDEFGHIJK", "btc", "BT-C"} {
		if ValidSymbol(s) {
			t.Errorf("Expected %q to be invalid", s)
		}
	}
	if got := NormalizeSymbol("  eth "); got != "ETH" {
		t.Errorf("Expected ETH, got %q", got)
	}
}

func TestParsePositiveDecimal(t *testing.T) {
	t.Parallel()

	d, err := ParsePositiveDecimal(" 0.010 ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.String() != "0.01" {
		t.Errorf("Expected 0.01, got %s", d)
	}
	if _, err := ParsePositiveDecimal(".5"); err != nil {
		t.Errorf("Expected .5 to parse, got %v", err)
	}
	if _, err := ParsePositiveDecimal(strings.Repeat("9", MaxDecimalLength)); err != nil {
		t.Errorf("Expected %d digits to parse, got %v", MaxDecimalLength, err)
	}
	for _, s := range []string{"", "0", "-5", "abc", "1.2.3", "0.0", "1e9", "1E-5", "1e300000000", "+5", "5.", strings.Repeat("9", MaxDecimalLength+1)} {
		if _, err := ParsePositiveDecimal(s); err == nil {
			t.Errorf("Expected error for %q", s)
		}
	}
}

func TestUserCredentialCanTrade(t *testing.T) {
	t.Parallel()

	c := &UserCredential{AccountPublicKey: "acc"}
	if c.CanTrade() {
		t.Error("Expected read-only credential")
	}
	c.AgentSecret = &EncryptedSecret{Ciphertext: "00", IV: "00", AuthTag: "00"}
	c.AgentPublicKey = "agent"
	if !c.CanTrade() {
		t.Error("Expected trading credential")
	}
}
