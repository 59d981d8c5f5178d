package bot

import (
	"context"
	"strings"

	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/flow"
)

var flowCommands = map[string]flow.Kind{
	"connect":     flow.KindConnect,
	"limit":       flow.KindLimitOrder,
	"market":      flow.KindMarketOrder,
	"cancelorder": flow.KindCancelOrder,
	"leverage":    flow.KindLeverage,
	"tpsl":        flow.KindTPSL,
}

// viewFunc renders a read-only view. cred is nil for views that need no
// connected wallet.
type viewFunc func(ctx context.Context, d *Dispatcher, cred *domain.UserCredential, arg string) (string, error)

type viewSpec struct {
	needsWallet bool
	render      viewFunc
}

var views = map[string]viewSpec{
	"account": {true, func(ctx context.Context, d *Dispatcher, cred *domain.UserCredential, _ string) (string, error) {
		a, err := d.api.Account(ctx, cred.AccountPublicKey)
		if err != nil {
			return "", err
		}
		return formatAccount(cred, a), nil
	}},
	"positions": {true, func(ctx context.Context, d *Dispatcher, cred *domain.UserCredential, _ string) (string, error) {
		p, err := d.api.Positions(ctx, cred.AccountPublicKey)
		if err != nil {
			return "", err
		}
		return formatPositions(p), nil
	}},
	"orders": {true, func(ctx context.Context, d *Dispatcher, cred *domain.UserCredential, arg string) (string, error) {
		o, err := d.api.Orders(ctx, cred.AccountPublicKey, domain.NormalizeSymbol(arg))
		if err != nil {
			return "", err
		}
		return formatOrders(o), nil
	}},
	"settings": {true, func(ctx context.Context, d *Dispatcher, cred *domain.UserCredential, _ string) (string, error) {
		s, err := d.api.Settings(ctx, cred.AccountPublicKey)
		if err != nil {
			return "", err
		}
		return formatSettings(s), nil
	}},
	"subaccounts": {true, func(ctx context.Context, d *Dispatcher, cred *domain.UserCredential, _ string) (string, error) {
		s, err := d.api.Subaccounts(ctx, cred.AccountPublicKey)
		if err != nil {
			return "", err
		}
		return formatSubaccounts(s), nil
	}},
	"prices": {false, func(ctx context.Context, d *Dispatcher, _ *domain.UserCredential, arg string) (string, error) {
		p, err := d.prices.Prices(ctx)
		if err != nil {
			return "", err
		}
		return formatPrices(p, domain.NormalizeSymbol(arg)), nil
	}},
	"markets": {false, func(ctx context.Context, d *Dispatcher, _ *domain.UserCredential, _ string) (string, error) {
		m, err := d.api.Markets(ctx)
		if err != nil {
			return "", err
		}
		return formatMarkets(m), nil
	}},
}

// view runs a read-only view in the background.
func (d *Dispatcher) view(userID int64, name, arg string, v viewSpec) []Reply {
	err := d.enqueue("view "+name, userID, func(ctx context.Context) {
		var cred *domain.UserCredential
		if v.needsWallet {
			c, err := d.creds.Get(ctx, userID)
			if err != nil {
				d.notify(ctx, userID, Reply{Text: describeError(err)})
				return
			}
			cred = c
		}
		out, err := v.render(ctx, d, cred, arg)
		if err != nil {
			d.logger.Warn("View failed", "user_id", userID, "view", name, "error", err)
			d.notify(ctx, userID, Reply{Text: describeError(err)})
			return
		}
		d.notify(ctx, userID, Reply{Text: out, Options: menuOptions})
	})
	if err != nil {
		return text(describeError(err))
	}
	return nil
}

var menuOptions = []flow.Option{
	{Label: "📊 Account", Value: "/account"},
	{Label: "📈 Positions", Value: "/positions"},
	{Label: "📋 Orders", Value: "/orders"},
	{Label: "💹 Prices", Value: "/prices"},
	{Label: "➕ Limit", Value: "/limit"},
	{Label: "⚡ Market", Value: "/market"},
}

func helpReply() Reply {
	var b strings.Builder
	b.WriteString("🤖 Pacifica trading bot\n\n")
	b.WriteString("Wallet\n")
	b.WriteString("/connect - connect your wallet (agent key or read-only)\n")
	b.WriteString("/disconnect - delete your stored wallet data\n\n")
	b.WriteString("Trading\n")
	b.WriteString("/limit - place a limit order\n")
	b.WriteString("/market - place a market order\n")
	b.WriteString("/cancelorder - cancel one order\n")
	b.WriteString("/cancelall [SYMBOL] - cancel all open orders\n")
	b.WriteString("/leverage - change leverage for a market\n")
	b.WriteString("/tpsl - set take-profit / stop-loss on a position\n\n")
	b.WriteString("Views\n")
	b.WriteString("/account /positions /orders [SYMBOL] /settings /subaccounts\n")
	b.WriteString("/prices [SYMBOL] /markets\n\n")
	b.WriteString("Type \"cancel\" at any step to stop.")
	return Reply{Text: b.String(), Options: menuOptions}
}
