package codec

import (
	"fmt"

	"github.com/unkn0wn-root/gencache"
)

// Codec encodes/decodes values V to []byte for transport.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ID names a codec on the wire so receivers can pick the matching decoder.
type ID byte

const (
	IDJSON ID = iota + 1
	IDCBOR
	IDMsgpack
	IDProto
)

func (id ID) String() string {
	switch id {
	case IDJSON:
		return "json"
	case IDCBOR:
		return "cbor"
	case IDMsgpack:
		return "msgpack"
	case IDProto:
		return "proto"
	default:
		return fmt.Sprintf("codec(%d)", byte(id))
	}
}

// ParseID maps a codec name ("json", "cbor", "msgpack", "proto") to its ID.
func ParseID(name string) (ID, error) {
	for id := IDJSON; id <= IDProto; id++ {
		if id.String() == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("codec: unknown codec %q", name)
}

// ForEvents returns the removal-event codec registered under id.
func ForEvents(id ID) (Codec[gencache.RemovalEvent], error) {
	switch id {
	case IDJSON:
		return JSONCodec[gencache.RemovalEvent]{}, nil
	case IDCBOR:
		return NewCBOR[gencache.RemovalEvent](true)
	case IDMsgpack:
		return Msgpack[gencache.RemovalEvent]{}, nil
	case IDProto:
		return EventProto{}, nil
	default:
		return nil, fmt.Errorf("codec: no event codec for %s", id)
	}
}
