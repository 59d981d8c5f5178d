package pacifica

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

const pricesKey = "prices"

// PriceFetcher loads the full price board.
type PriceFetcher interface {
	Prices(ctx context.Context) ([]Price, error)
}

// PriceCache keeps the price board for a short TTL so repeated views do not
// each hit the API.
type PriceCache struct {
	src   PriceFetcher
	cache *cache.Cache
}

// NewPriceCache wraps src with a cache of the given TTL.
func NewPriceCache(src PriceFetcher, ttl time.Duration) *PriceCache {
	return &PriceCache{
		src:   src,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Prices returns the cached board, refreshing it when stale.
func (p *PriceCache) Prices(ctx context.Context) ([]Price, error) {
	if v, ok := p.cache.Get(pricesKey); ok {
		return v.([]Price), nil
	}
	prices, err := p.src.Prices(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(pricesKey, prices)
	return prices, nil
}

// Price returns the row for one symbol.
func (p *PriceCache) Price(ctx context.Context, symbol string) (Price, error) {
	prices, err := p.Prices(ctx)
	if err != nil {
		return Price{}, err
	}
	for _, pr := range prices {
		if pr.Symbol == symbol {
			return pr, nil
		}
	}
	return Price{}, fmt.Errorf("no price for %s", symbol)
}
