package types

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/apd/v3"
	"golang.org/x/crypto/sha3"

	"github.com/xmrbtcswap/swapd/coins"
	"github.com/xmrbtcswap/swapd/common/vjson"
)

var (
	// CurOfferVersion is the latest supported version of a serialised Offer struct.
	CurOfferVersion, _ = semver.NewVersion("1.0.0")

	errOfferVersionMissing = errors.New(`required "version" field missing in offer`)
	errOfferIDNotSet       = errors.New(`"offerID" is not set`)
	errExchangeRateNil     = errors.New(`"exchangeRate" is not set`)
	errMinGreaterThanMax   = errors.New(`"minAmount" must be less than or equal to "maxAmount"`)
)

// Offer represents Alice's advertised terms for trading XMR for BTC, prior
// to Bob's Request(amounts) that kicks off negotiation (§4.C). There is no
// notion of partial fills or an order book (Non-goal): an Offer is consumed
// whole by exactly one counterparty.
type Offer struct {
	Version      semver.Version      `json:"version"`
	ID           Hash                `json:"offerID" validate:"required"`
	MinAmount    *apd.Decimal        `json:"minAmount" validate:"required"` // min XMR amount
	MaxAmount    *apd.Decimal        `json:"maxAmount" validate:"required"` // max XMR amount
	ExchangeRate *coins.ExchangeRate `json:"exchangeRate" validate:"required"`
	Nonce        uint64              `json:"nonce" validate:"required"`
}

// NewOffer creates and returns an Offer with an initialised ID and Version field.
func NewOffer(
	minAmount *apd.Decimal,
	maxAmount *apd.Decimal,
	exRate *coins.ExchangeRate,
) *Offer {
	var n [8]byte
	if _, err := rand.Read(n[:]); err != nil {
		panic(err)
	}

	// Reduce the apd coefficients before hashing, otherwise a value like
	// apd.New(10, -2) would print "0.10" instead of the reduced "0.1".
	_, _ = minAmount.Reduce(minAmount)
	_, _ = maxAmount.Reduce(maxAmount)
	rate := exRate.Decimal()
	_, _ = rate.Reduce(rate)
	*exRate = coins.ExchangeRate(*rate)

	offer := &Offer{
		Version:      *CurOfferVersion,
		MinAmount:    minAmount,
		MaxAmount:    maxAmount,
		ExchangeRate: exRate,
		Nonce:        binary.BigEndian.Uint64(n[:]),
	}

	offer.setID()
	return offer
}

func (o *Offer) setID() {
	if !IsHashZero(o.ID) {
		panic("offer ID is already set")
	}

	o.ID = o.hash()
}

func (o *Offer) hash() Hash {
	b := []byte(o.Version.String())
	b = append(b, ',')
	b = append(b, []byte(o.MinAmount.Text('f'))...)
	b = append(b, ',')
	b = append(b, []byte(o.MaxAmount.Text('f'))...)
	b = append(b, ',')
	b = append(b, []byte(o.ExchangeRate.String())...)
	b = append(b, ',')
	b = append(b, []byte(fmt.Sprintf("%d", o.Nonce))...)
	return Hash(sha3.Sum256(b))
}

// String implements fmt.Stringer.
func (o *Offer) String() string {
	return fmt.Sprintf("OfferID:%s MinAmount:%s MaxAmount:%s ExchangeRate:%s Nonce:%d",
		o.ID,
		o.MinAmount.String(),
		o.MaxAmount.String(),
		o.ExchangeRate.String(),
		o.Nonce,
	)
}

// IsSet returns true if the offer's fields are all set.
func (o *Offer) IsSet() bool {
	return !IsHashZero(o.ID) &&
		o.MinAmount != nil &&
		o.MaxAmount != nil &&
		o.ExchangeRate != nil
}

func (o *Offer) validate() error {
	if IsHashZero(o.ID) {
		return errOfferIDNotSet
	}

	if err := coins.ValidatePositive("minAmount", coins.NumMoneroDecimals, o.MinAmount); err != nil {
		return err
	}
	if err := coins.ValidatePositive("maxAmount", coins.NumMoneroDecimals, o.MaxAmount); err != nil {
		return err
	}

	if o.MinAmount.Cmp(o.MaxAmount) > 0 {
		return errMinGreaterThanMax
	}

	if o.ExchangeRate == nil {
		return errExchangeRateNil
	}

	if o.ID != o.hash() {
		return errors.New("hash of offer fields does not match offer ID")
	}

	return nil
}

// OfferExtra carries in-memory-only data alongside an offer that must not
// survive serialisation, such as the channel used to stream status updates
// to an RPC subscriber.
type OfferExtra struct {
	StatusCh chan Status `json:"-"`
}

// UnmarshalOffer deserializes a JSON offer, checking the version for
// compatibility before attempting to deserialize the whole blob.
func UnmarshalOffer(jsonData []byte) (*Offer, error) {
	ov := struct {
		Version *semver.Version `json:"version"`
	}{}
	if err := json.Unmarshal(jsonData, &ov); err != nil {
		return nil, err
	}

	if ov.Version == nil {
		return nil, errOfferVersionMissing
	}

	if ov.Version.GreaterThan(CurOfferVersion) {
		return nil, fmt.Errorf("offer version %q not supported, latest is %q", ov.Version, CurOfferVersion)
	}

	o := new(Offer)
	if err := vjson.UnmarshalStruct(jsonData, o); err != nil {
		return nil, err
	}

	return o, nil
}

// MarshalJSON provides JSON marshalling for the Offer type.
func (o *Offer) MarshalJSON() ([]byte, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	type _Offer Offer
	return vjson.MarshalStruct((*_Offer)(o))
}

// UnmarshalJSON provides JSON unmarshalling for the Offer type.
func (o *Offer) UnmarshalJSON(data []byte) error {
	type _Offer Offer
	if err := vjson.UnmarshalStruct(data, (*_Offer)(o)); err != nil {
		return err
	}
	return o.validate()
}
