// Package vjson marshals and unmarshals structs via encoding/json, running
// them through a struct-tag validator both ways so that malformed peer
// messages (§4.C) and corrupt persisted state (§4.G) are rejected before
// the caller ever sees a half-populated struct.
package vjson

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MarshalStruct validates v against its `validate` struct tags, then
// marshals it to JSON.
func MarshalStruct(v interface{}) ([]byte, error) {
	if err := validate.Struct(v); err != nil {
		return nil, fmt.Errorf("validation failed before marshal: %w", err)
	}
	return json.Marshal(v)
}

// UnmarshalStruct unmarshals data into v, then validates the result against
// v's `validate` struct tags.
func UnmarshalStruct(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation failed after unmarshal: %w", err)
	}
	return nil
}
