package codec

import "encoding/json"

// JSONCodec uses encoding/json. Removal events come out as
// {"ns","key","reason","gen","at"} objects with the reason as its number,
// which keeps them readable for non-Go subscribers tailing the channel.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
