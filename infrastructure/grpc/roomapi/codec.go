// Package roomapi describes the estimo.v1.RoomService gRPC contract.
// Messages are the JSON shapes of package wire, carried by a codec
// registered under the "json" content-subtype.
package roomapi

import (
	"github.com/goccy/go-json"
	"google.golang.org/grpc/encoding"
)

const CodecName = "json"

// Codec marshals messages with go-json.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(Codec{})
}
