// Package currency converts amounts between the supported currencies using a
// static rate table. Rates are configuration, never fetched live.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"expenses/internal/core"
)

// Base is the currency every rate is expressed against.
const Base = core.USD

var ErrUnknownCurrency = errors.New("unknown currency")

// Rates maps a currency to how many units of it one unit of Base buys.
type Rates map[core.Currency]decimal.Decimal

// DefaultRates returns the built-in table.
func DefaultRates() Rates {
	return Rates{
		core.USD: decimal.NewFromInt(1),
		core.EUR: decimal.RequireFromString("0.92"),
		core.GBP: decimal.RequireFromString("0.79"),
		core.INR: decimal.RequireFromString("83.0"),
		core.JPY: decimal.RequireFromString("150.0"),
	}
}

// LoadRates reads a rate table from a YAML, JSON or TOML file keyed by
// currency code, e.g. `EUR: 0.92`. Codes missing from the file keep their
// default rate, and RATE_<CODE> environment variables override both. An empty
// path yields the defaults plus environment overrides.
func LoadRates(path string) (Rates, error) {
	v := viper.New()
	v.SetEnvPrefix("RATE")
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read rate file %s: %w", path, err)
		}
	}

	rates := DefaultRates()
	for _, c := range core.Currencies() {
		if c == Base || !v.IsSet(string(c)) {
			continue
		}
		raw := v.GetString(string(c))
		r, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %q is not a number", c, raw)
		}
		if !r.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive, got %s", c, r)
		}
		rates[c] = r
	}
	return rates, nil
}

// Converter performs pairwise conversion through Base.
type Converter struct {
	rates Rates
}

// NewConverter copies rates so later changes to the map have no effect.
// The Base rate is always 1.
func NewConverter(rates Rates) *Converter {
	cp := make(Rates, len(rates)+1)
	for c, r := range rates {
		cp[c] = r
	}
	cp[Base] = decimal.NewFromInt(1)
	return &Converter{rates: cp}
}

// Convert computes amount / rate[from] * rate[to]. Identical currencies return
// amount unchanged. Either side missing from the table yields
// ErrUnknownCurrency.
func (c *Converter) Convert(amount decimal.Decimal, from, to core.Currency) (decimal.Decimal, error) {
	fromRate, ok := c.rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	if from == to {
		return amount, nil
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

// Rate returns the configured rate for c against Base.
func (c *Converter) Rate(cur core.Currency) (decimal.Decimal, bool) {
	r, ok := c.rates[cur]
	return r, ok
}
