// Package rpc carries gRPC messages as JSON so services can be declared
// with plain Go structs instead of generated protobuf types.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ServerOption makes a server decode every request as JSON.
func ServerOption() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}

// CallOption makes a client encode requests as JSON.
func CallOption() grpc.CallOption {
	return grpc.ForceCodec(jsonCodec{})
}
