// Package rpctransport implements C9: the gRPC transport carrying Raft
// RPCs between consensus nodes (internal/consensus depends on the
// Transport interface here, never on grpc directly).
package rpctransport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a grpc encoding.Codec using JSON instead of protobuf wire
// format. Registered under the name "proto" so it becomes the default
// codec grpc.Dial/grpc.NewServer pick up without per-call configuration
// — this module has no protoc step (see api/raftpb), so the hand-written
// message types are plain structs rather than proto.Message
// implementations; JSON is the simplest codec that can serialize them
// without fabricating protobuf reflection metadata.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "proto"
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ErrNotRegistered is returned when a peer address has no known client.
type ErrNotRegistered struct {
	PeerID string
}

func (e *ErrNotRegistered) Error() string {
	return fmt.Sprintf("rpctransport: no connection to peer %q", e.PeerID)
}
