package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CodecName is the content subtype of the CBOR codec: connect requests
// travel as application/cbor, gRPC ones as application/grpc+cbor.
const CodecName = "cbor"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Codec marshals RPC messages as canonical CBOR. It satisfies both
// connect.Codec and grpc's encoding.Codec.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("server: unmarshal %T: %w", v, err)
	}
	return nil
}
