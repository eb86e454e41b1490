package rpcclient

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered as a grpc content-subtype. The retrieval pack
// carries no protoc-gen-go stubs for this domain (see DESIGN.md), so instead
// of hand-authoring protoreflect-backed message types this client speaks
// plain JSON-tagged Go structs over a real *grpc.ClientConn, selected per-call
// via grpc.CallContentSubtype(jsonCodecName). Transport semantics — deadlines,
// status codes, connection management — are unchanged grpc-go.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec (Marshal/Unmarshal/Name) using
// encoding/json instead of protobuf wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return jsonCodecName }
