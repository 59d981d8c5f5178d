package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/pacifica-bot/internal/credentials"
	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/envelope"
	"github.com/ashureev/pacifica-bot/internal/pacifica"
	"github.com/ashureev/pacifica-bot/internal/signing"
	"github.com/ashureev/pacifica-bot/internal/vault"
	"github.com/ashureev/pacifica-bot/internal/worker"
)

// describeError turns an error into a user-facing message.
func describeError(err error) string {
	var apiErr *pacifica.APIError
	switch {
	case errors.Is(err, credentials.ErrNotConnected):
		return "❌ No wallet connected. Use /connect first."
	case errors.Is(err, credentials.ErrReadOnly):
		return "❌ Trading is not enabled. Your wallet is connected read-only.\n\nUse /connect and provide your agent wallet private key."
	case errors.Is(err, credentials.ErrKeyMismatch):
		return "❌ Your stored agent key does not match its public key. Please reconnect with /connect."
	case errors.Is(err, vault.ErrAuthenticationFailure):
		return "❌ Your stored credentials could not be unlocked. Please reconnect with /connect."
	case errors.Is(err, envelope.ErrNoSigningKeyAvailable):
		return "❌ No signing key is available for this action. Please reconnect with /connect."
	case errors.Is(err, signing.ErrInvalidKeyMaterial):
		return "❌ That key could not be parsed. Please check it and try /connect again."
	case errors.Is(err, domain.ErrInvalidPayload):
		return "❌ The order was rejected before sending: " + err.Error()
	case errors.Is(err, pacifica.ErrEnvelopeExpired):
		return "⏱ The signed request expired before the exchange received it. Nothing was executed, please resubmit."
	case errors.As(err, &apiErr) && apiErr.Transport():
		return "❌ Could not reach Pacifica. The request may not have been received; check /orders before resubmitting."
	case errors.As(err, &apiErr):
		return "❌ Pacifica rejected the request: " + apiErr.Message
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolStopped):
		return "⏳ The bot is busy right now. Please try again in a moment."
	default:
		return "❌ Something went wrong. Please try again later."
	}
}

func sideLabel(s domain.Side) string {
	if s == domain.SideBid {
		return "BUY"
	}
	return "SELL"
}

// summarize describes a payload before it is sent.
func summarize(p domain.Payload) string {
	switch v := p.(type) {
	case domain.LimitOrder:
		return fmt.Sprintf("📝 Limit order\n\nSymbol: %s\nSide: %s\nPrice: $%s\nAmount: %s", v.Symbol, sideLabel(v.Side), v.Price, v.Amount)
	case domain.MarketOrder:
		return fmt.Sprintf("📝 Market order\n\nSymbol: %s\nSide: %s\nAmount: %s\nSlippage: %s%%", v.Symbol, sideLabel(v.Side), v.Amount, v.SlippagePercent)
	case domain.CancelOrder:
		return "📝 Cancel order " + orderRef(v)
	case domain.CancelAllOrders:
		if v.AllSymbols {
			return "📝 Cancel all open orders"
		}
		return "📝 Cancel all open " + v.Symbol + " orders"
	case domain.UpdateLeverage:
		return fmt.Sprintf("📝 Set %s leverage to %dx", v.Symbol, v.Leverage)
	case domain.PositionTPSL:
		var b strings.Builder
		fmt.Fprintf(&b, "📝 TP/SL for %s %s position", v.Symbol, sideLabel(v.Side))
		if v.TakeProfit != nil {
			fmt.Fprintf(&b, "\nTake profit: $%s", v.TakeProfit.StopPrice)
		}
		if v.StopLoss != nil {
			fmt.Fprintf(&b, "\nStop loss: $%s", v.StopLoss.StopPrice)
		}
		return b.String()
	default:
		return "📝 " + string(p.Action())
	}
}

func orderRef(c domain.CancelOrder) string {
	ref := c.ClientOrderID
	if c.OrderID != nil {
		ref = fmt.Sprintf("#%d", *c.OrderID)
	}
	return c.Symbol + " " + ref
}

// formatResult describes an accepted action.
func formatResult(p domain.Payload, res *pacifica.SubmitResult) string {
	switch v := p.(type) {
	case domain.LimitOrder, domain.MarketOrder:
		return fmt.Sprintf("✅ Order placed!\n\nOrder ID: %d", res.OrderID)
	case domain.CancelOrder:
		return "✅ Order " + orderRef(v) + " cancelled."
	case domain.CancelAllOrders:
		return fmt.Sprintf("✅ Cancelled %d order(s).", res.CancelledCount)
	case domain.UpdateLeverage:
		return fmt.Sprintf("✅ %s leverage set to %dx.", v.Symbol, v.Leverage)
	case domain.PositionTPSL:
		return "✅ TP/SL set for " + v.Symbol + "."
	default:
		return "✅ Done."
	}
}

func shortKey(k string) string {
	if len(k) <= 16 {
		return k
	}
	return k[:8] + "..." + k[len(k)-8:]
}

func formatConnected(c *domain.UserCredential) string {
	mode := "📖 Read-only mode"
	if c.CanTrade() {
		mode = "✅ Trading enabled"
	}
	return fmt.Sprintf("✅ Wallet connected!\n\n👤 Wallet: %s\n%s", shortKey(c.AccountPublicKey), mode)
}

func formatAccount(c *domain.UserCredential, a *pacifica.Account) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Account %s\n\n", shortKey(c.AccountPublicKey))
	fmt.Fprintf(&b, "Balance: $%s\n", a.Balance)
	fmt.Fprintf(&b, "Equity: $%s\n", a.AccountEquity)
	fmt.Fprintf(&b, "Available to spend: $%s\n", a.AvailableToSpend)
	fmt.Fprintf(&b, "Margin used: $%s\n", a.TotalMarginUsed)
	fmt.Fprintf(&b, "Positions: %d  Orders: %d  Stop orders: %d", a.PositionsCount, a.OrdersCount, a.StopOrdersCount)
	if !c.CanTrade() {
		b.WriteString("\n\n📖 Read-only mode")
	}
	return b.String()
}

func formatPositions(ps []pacifica.Position) string {
	if len(ps) == 0 {
		return "📈 No open positions."
	}
	var b strings.Builder
	b.WriteString("📈 Open positions\n")
	for _, p := range ps {
		margin := "cross"
		if p.Isolated {
			margin = "isolated"
		}
		fmt.Fprintf(&b, "\n%s %s %s @ $%s (%s)", p.Symbol, sideLabel(domain.Side(p.Side)), p.Amount, p.EntryPrice, margin)
	}
	return b.String()
}

func formatOrders(os []pacifica.Order) string {
	if len(os) == 0 {
		return "📋 No open orders."
	}
	var b strings.Builder
	b.WriteString("📋 Open orders\n")
	for _, o := range os {
		fmt.Fprintf(&b, "\n#%d %s %s %s @ $%s", o.OrderID, o.Symbol, sideLabel(domain.Side(o.Side)), o.InitialAmount, o.Price)
		if o.StopPrice != "" {
			fmt.Fprintf(&b, " stop $%s", o.StopPrice)
		}
	}
	return b.String()
}

func formatSettings(ss []pacifica.AccountSetting) string {
	if len(ss) == 0 {
		return "⚙️ All markets use default settings."
	}
	var b strings.Builder
	b.WriteString("⚙️ Market settings\n")
	for _, s := range ss {
		margin := "cross"
		if s.Isolated {
			margin = "isolated"
		}
		fmt.Fprintf(&b, "\n%s: %dx %s", s.Symbol, s.Leverage, margin)
	}
	return b.String()
}

func formatSubaccounts(ss []pacifica.Subaccount) string {
	if len(ss) == 0 {
		return "👥 No subaccounts."
	}
	var b strings.Builder
	b.WriteString("👥 Subaccounts\n")
	for _, s := range ss {
		fmt.Fprintf(&b, "\n%s balance $%s", shortKey(s.Address), s.Balance)
	}
	return b.String()
}

// formatPrices lists the board, or one symbol in detail when symbol is set.
func formatPrices(ps []pacifica.Price, symbol string) string {
	if symbol != "" {
		for _, p := range ps {
			if p.Symbol == symbol {
				return fmt.Sprintf("💹 %s\n\nMark: $%s\nMid: $%s\nOracle: $%s\nFunding: %s (next %s)\nOpen interest: %s\n24h volume: $%s\nYesterday: $%s",
					p.Symbol, p.Mark, p.Mid, p.Oracle, p.Funding, p.NextFunding, p.OpenInterest, p.Volume24h, p.YesterdayPrice)
			}
		}
		return "💹 No price for " + symbol + "."
	}
	if len(ps) == 0 {
		return "💹 No prices available."
	}
	var b strings.Builder
	b.WriteString("💹 Prices\n")
	for _, p := range ps {
		fmt.Fprintf(&b, "\n%s $%s", p.Symbol, p.Mark)
	}
	return b.String()
}

func formatMarkets(ms []pacifica.Market) string {
	if len(ms) == 0 {
		return "🏦 No markets listed."
	}
	var b strings.Builder
	b.WriteString("🏦 Markets\n")
	for _, m := range ms {
		fmt.Fprintf(&b, "\n%s max %dx, tick %s, lot %s", m.Symbol, m.MaxLeverage, m.TickSize, m.LotSize)
	}
	return b.String()
}
