package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/pacifica-bot/internal/domain"
	"github.com/ashureev/pacifica-bot/internal/signing"
	"github.com/google/uuid"
)

// SkipToken selects a read-only connection at the agent key step.
const SkipToken = "skip"

func parseSymbol(in string) (string, error) {
	s := domain.NormalizeSymbol(in)
	if !domain.ValidSymbol(s) {
		return "", errors.New("symbol must be BTC, ETH, SOL or 2-10 letters and digits")
	}
	return s, nil
}

func parseSide(in string) (string, error) {
	switch strings.ToLower(in) {
	case "bid", "buy", "long":
		return string(domain.SideBid), nil
	case "ask", "sell", "short":
		return string(domain.SideAsk), nil
	}
	return "", errors.New("side must be bid or ask")
}

// parsePositive re-renders the bounded input without trailing zeros.
func parsePositive(in string) (string, error) {
	d, err := domain.ParsePositiveDecimal(in)
	if err != nil {
		return "", errors.New("enter a positive number")
	}
	return d.String(), nil
}

func parseLeverage(in string) (string, error) {
	n, err := strconv.Atoi(in)
	if err != nil || n < domain.MinLeverage || n > domain.MaxLeverage {
		return "", fmt.Errorf("leverage must be a whole number from %d to %d", domain.MinLeverage, domain.MaxLeverage)
	}
	return strconv.Itoa(n), nil
}

// parseIdentifier accepts "SYMBOL ID", where ID is a positive order ID or
// a UUID client order ID. The exchange routes cancels by market, so the
// symbol is mandatory.
func parseIdentifier(in string) (string, error) {
	parts := strings.Fields(in)
	if len(parts) != 2 {
		return "", errors.New("expected the symbol followed by the order ID (e.g. BTC 12345)")
	}
	symbol, err := parseSymbol(parts[0])
	if err != nil {
		return "", err
	}

	id := parts[1]
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		if n <= 0 {
			return "", errors.New("order ID must be positive")
		}
		id = strconv.FormatInt(n, 10)
	} else if isClientOrderID(id) {
		id = uuid.MustParse(id).String()
	} else {
		return "", errors.New("expected a numeric order ID or a UUID client order ID")
	}
	return symbol + " " + id, nil
}

// splitIdentifier undoes parseIdentifier's normalized form.
func splitIdentifier(v string) (symbol, id string) {
	symbol, id, _ = strings.Cut(v, " ")
	return symbol, id
}

func parseAccountKey(in string) (string, error) {
	pub, err := signing.ParsePublicKey(in)
	if err != nil {
		return "", errors.New("not a valid wallet address")
	}
	return pub.String(), nil
}

// parseAgentKey returns "" for a read-only connection.
func parseAgentKey(in string) (string, error) {
	if strings.EqualFold(in, SkipToken) {
		return "", nil
	}
	if _, err := signing.ParseSecret(in); err != nil {
		return "", errors.New("could not parse as a 64-byte base58 keypair; send \"skip\" for read-only mode")
	}
	return in, nil
}

func parseTPSLType(in string) (string, error) {
	switch strings.ToLower(strings.ReplaceAll(in, "-", "_")) {
	case tpslTakeProfit, "tp":
		return tpslTakeProfit, nil
	case tpslStopLoss, "sl":
		return tpslStopLoss, nil
	case tpslBoth:
		return tpslBoth, nil
	}
	return "", errors.New("choose take_profit, stop_loss or both")
}
