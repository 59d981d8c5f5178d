package canonical

import (
	"testing"
)

func TestMarshalDeterministicForKeyOrder(t *testing.T) {
	t.Parallel()

	a := map[string]any{
		"type": "create_limit_order",
		"data": map[string]any{"symbol": "BTC", "amount": "0.01", "nested": map[string]any{"z": 1, "a": 2}},
	}
	b := map[string]any{
		"data": map[string]any{"nested": map[string]any{"a": 2, "z": 1}, "amount": "0.01", "symbol": "BTC"},
		"type": "create_limit_order",
	}

	ca, err := Marshal(a)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	cb, err := Marshal(b)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("Expected identical encodings, got %s vs %s", ca, cb)
	}
}

func TestMarshalSortsEveryLevel(t *testing.T) {
	t.Parallel()

	got, err := Marshal(map[string]any{
		"type":          "create_limit_order",
		"timestamp":     int64(1716200000000),
		"expiry_window": 5000,
		"data": map[string]any{
			"symbol": "BTC",
			"side":   "bid",
			"price":  "95000",
			"amount": "0.01",
		},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	want := `{"data":{"amount":"0.01","price":"95000","side":"bid","symbol":"BTC"},"expiry_window":5000,"timestamp":1716200000000,"type":"create_limit_order"}`
	if string(got) != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestMarshalKeepsArrayOrder(t *testing.T) {
	t.Parallel()

	got, err := Marshal(map[string]any{"list": []any{3, "b", map[string]any{"y": true, "x": nil}}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := `{"list":[3,"b",{"x":null,"y":true}]}`
	if string(got) != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestMarshalStructOmitsAbsentOptionalFields(t *testing.T) {
	t.Parallel()

	type leg struct {
		StopPrice     string `json:"stop_price"`
		LimitPrice    string `json:"limit_price,omitempty"`
		ClientOrderID string `json:"client_order_id,omitempty"`
	}
	type payload struct {
		Symbol     string `json:"symbol"`
		TakeProfit *leg   `json:"take_profit,omitempty"`
		StopLoss   *leg   `json:"stop_loss,omitempty"`
	}

	got, err := Marshal(payload{Symbol: "ETH", StopLoss: &leg{StopPrice: "3100"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := `{"stop_loss":{"stop_price":"3100"},"symbol":"ETH"}`
	if string(got) != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestMarshalPreservesNumbersAndDoesNotEscapeHTML(t *testing.T) {
	t.Parallel()

	got, err := Marshal(map[string]any{"n": 12345678901234567, "f": 0.5, "s": "a<b>&c"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := `{"f":0.5,"n":12345678901234567,"s":"a<b>&c"}`
	if string(got) != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestMarshalRejectsUnencodable(t *testing.T) {
	t.Parallel()

	if _, err := Marshal(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("Expected error for channel value")
	}
}
