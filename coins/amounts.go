// Package coins provides the fixed-point amount types for the two legs of a
// swap: Bitcoin (satoshis) and Monero (piconero), plus the exchange rate
// used to derive one from the other at negotiation time.
package coins

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

const (
	// NumBitcoinDecimals is the number of decimal places in one BTC (1e8 satoshis).
	NumBitcoinDecimals = 8
	// NumMoneroDecimals is the number of decimal places in one XMR (1e12 piconero).
	NumMoneroDecimals = 12
)

var (
	satsPerBTC  = new(big.Int).Exp(big.NewInt(10), big.NewInt(NumBitcoinDecimals), nil)
	piconeroXMR = new(big.Int).Exp(big.NewInt(10), big.NewInt(NumMoneroDecimals), nil)
)

// SatsAmount represents an amount of satoshis, the smallest denomination of bitcoin.
type SatsAmount uint64

// NewSatsAmount wraps a raw satoshi count.
func NewSatsAmount(sats uint64) SatsAmount {
	return SatsAmount(sats)
}

// BTCToSats converts a decimal BTC amount into satoshis.
func BTCToSats(amount *apd.Decimal) (SatsAmount, error) {
	var sats apd.Decimal
	ctx := apd.BaseContext.WithPrecision(40)
	mult := apd.New(1, NumBitcoinDecimals)
	if _, err := ctx.Mul(&sats, amount, mult); err != nil {
		return 0, fmt.Errorf("failed to convert BTC to satoshis: %w", err)
	}

	i, err := sats.Int64()
	if err != nil {
		return 0, fmt.Errorf("BTC amount out of range: %w", err)
	}
	if i < 0 {
		return 0, errors.New("BTC amount must not be negative")
	}
	return SatsAmount(i), nil
}

// AsBTC returns the amount as a decimal BTC value.
func (a SatsAmount) AsBTC() *apd.Decimal {
	d := apd.New(int64(a), -NumBitcoinDecimals)
	r := new(apd.Decimal)
	_, _ = apd.BaseContext.Reduce(r, d)
	return r
}

// AsBTCString formats the amount as a decimal BTC string.
func (a SatsAmount) AsBTCString() string {
	return a.AsBTC().Text('f')
}

// PiconeroAmount represents an amount of piconero, the smallest denomination of monero.
type PiconeroAmount uint64

// NewPiconeroAmount wraps a raw piconero count.
func NewPiconeroAmount(piconero uint64) PiconeroAmount {
	return PiconeroAmount(piconero)
}

// MoneroToPiconero converts a decimal XMR amount into piconero.
func MoneroToPiconero(amount *apd.Decimal) (PiconeroAmount, error) {
	var pic apd.Decimal
	ctx := apd.BaseContext.WithPrecision(40)
	mult := apd.New(1, NumMoneroDecimals)
	if _, err := ctx.Mul(&pic, amount, mult); err != nil {
		return 0, fmt.Errorf("failed to convert XMR to piconero: %w", err)
	}

	i, err := pic.Int64()
	if err != nil {
		return 0, fmt.Errorf("XMR amount out of range: %w", err)
	}
	if i < 0 {
		return 0, errors.New("XMR amount must not be negative")
	}
	return PiconeroAmount(i), nil
}

// AsMonero returns the amount as a decimal XMR value.
func (a PiconeroAmount) AsMonero() *apd.Decimal {
	d := apd.New(int64(a), -NumMoneroDecimals)
	r := new(apd.Decimal)
	_, _ = apd.BaseContext.Reduce(r, d)
	return r
}

// AsMoneroString formats the amount as a decimal XMR string.
func (a PiconeroAmount) AsMoneroString() string {
	return a.AsMonero().Text('f')
}

// ExchangeRate is the price of 1 XMR, denominated in BTC.
type ExchangeRate apd.Decimal

// NewExchangeRate wraps a decimal BTC-per-XMR price.
func NewExchangeRate(d *apd.Decimal) *ExchangeRate {
	r := ExchangeRate(*d)
	return &r
}

// Decimal returns the underlying decimal.
func (r *ExchangeRate) Decimal() *apd.Decimal {
	d := apd.Decimal(*r)
	return &d
}

// String implements fmt.Stringer.
func (r *ExchangeRate) String() string {
	return r.Decimal().Text('f')
}

// ToBTC converts an XMR amount into the equivalent BTC amount at this rate.
func (r *ExchangeRate) ToBTC(xmr *apd.Decimal) (*apd.Decimal, error) {
	res := new(apd.Decimal)
	ctx := apd.BaseContext.WithPrecision(40)
	if _, err := ctx.Mul(res, xmr, r.Decimal()); err != nil {
		return nil, err
	}
	return res, nil
}

// ValidatePositive returns an error if d is not a strictly positive decimal
// with no more than maxDecimals digits after the point.
func ValidatePositive(name string, maxDecimals int32, d *apd.Decimal) error {
	if d == nil {
		return fmt.Errorf("%q must be set", name)
	}
	if d.Sign() <= 0 {
		return fmt.Errorf("%q must be positive", name)
	}
	if -d.Exponent > maxDecimals {
		return fmt.Errorf("%q has more than %d decimal places", name, maxDecimals)
	}
	return nil
}
