package rpc

import "github.com/gorilla/rpc/v2/json2"

// NewCodec returns the JSON-RPC 2.0 codec every registered service shares.
func NewCodec() *json2.Codec {
	return json2.NewCodec()
}
