// Package vcbor marshals and unmarshals structs via CBOR, running them
// through a struct-tag validator both ways, the same discipline
// common/vjson applies to JSON. It is used for the net/message wire frames
// (§4.C, §6), which are CBOR rather than JSON so that binary fields
// (signatures, proofs, public keys) do not need hex-string wrapping on the
// wire.
package vcbor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MarshalStruct validates v against its `validate` struct tags, then
// marshals it to CBOR.
func MarshalStruct(v interface{}) ([]byte, error) {
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("validation failed before marshal: %w", err)
	}
	return cbor.Marshal(v)
}

// UnmarshalStruct unmarshals data into v, then validates the result against
// v's `validate` struct tags.
func UnmarshalStruct(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation failed after unmarshal: %w", err)
	}
	return nil
}
