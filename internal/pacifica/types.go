package pacifica

// Numeric values are kept as the decimal strings the API returns.

// SubmitResult is the data returned by a signed action.
type SubmitResult struct {
	OrderID        int64 `json:"order_id,omitempty"`
	CancelledCount int   `json:"cancelled_count,omitempty"`
}

// Account is the account summary.
type Account struct {
	Balance             string `json:"balance"`
	FeeLevel            int    `json:"fee_level"`
	AccountEquity       string `json:"account_equity"`
	AvailableToSpend    string `json:"available_to_spend"`
	AvailableToWithdraw string `json:"available_to_withdraw"`
	PendingBalance      string `json:"pending_balance"`
	TotalMarginUsed     string `json:"total_margin_used"`
	CrossMMR            string `json:"cross_mmr"`
	PositionsCount      int    `json:"positions_count"`
	OrdersCount         int    `json:"orders_count"`
	StopOrdersCount     int    `json:"stop_orders_count"`
	UpdatedAt           int64  `json:"updated_at"`
}

// Position is one open position.
type Position struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Amount     string `json:"amount"`
	EntryPrice string `json:"entry_price"`
	Margin     string `json:"margin,omitempty"`
	Funding    string `json:"funding"`
	Isolated   bool   `json:"isolated"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Order is one open order.
type Order struct {
	OrderID         int64  `json:"order_id"`
	ClientOrderID   string `json:"client_order_id,omitempty"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	InitialAmount   string `json:"initial_amount"`
	FilledAmount    string `json:"filled_amount"`
	CancelledAmount string `json:"cancelled_amount"`
	StopPrice       string `json:"stop_price,omitempty"`
	OrderType       string `json:"order_type"`
	ReduceOnly      bool   `json:"reduce_only"`
	CreatedAt       int64  `json:"created_at"`
}

// AccountSetting is the margin configuration of one market.
type AccountSetting struct {
	Symbol    string `json:"symbol"`
	Isolated  bool   `json:"isolated"`
	Leverage  int    `json:"leverage"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Price is one row of the price board.
type Price struct {
	Symbol         string `json:"symbol"`
	Mark           string `json:"mark"`
	Mid            string `json:"mid"`
	Oracle         string `json:"oracle"`
	Funding        string `json:"funding"`
	NextFunding    string `json:"next_funding"`
	OpenInterest   string `json:"open_interest"`
	Volume24h      string `json:"volume_24h"`
	YesterdayPrice string `json:"yesterday_price"`
	Timestamp      int64  `json:"timestamp"`
}

// Market is a market specification.
type Market struct {
	Symbol          string `json:"symbol"`
	TickSize        string `json:"tick_size"`
	LotSize         string `json:"lot_size"`
	MaxLeverage     int    `json:"max_leverage"`
	IsolatedOnly    bool   `json:"isolated_only"`
	MinOrderSize    string `json:"min_order_size"`
	MaxOrderSize    string `json:"max_order_size"`
	FundingRate     string `json:"funding_rate"`
	NextFundingRate string `json:"next_funding_rate"`
}

// Subaccount is one subaccount of the main account.
type Subaccount struct {
	Address        string `json:"address"`
	Balance        string `json:"balance"`
	PendingBalance string `json:"pending_balance"`
	FeeLevel       int    `json:"fee_level"`
	CreatedAt      int64  `json:"created_at"`
}
