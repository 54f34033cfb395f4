package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes with vmihailenco/msgpack/v5 and is the publisher's
// default event codec. The zero value is ready to use. RemovalEvent maps to
// the short ns/key/reason/gen/at names from its `msgpack` tags, with At as
// the msgpack timestamp extension.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }
func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
