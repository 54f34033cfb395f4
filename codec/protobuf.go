package codec

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/unkn0wn-root/gencache"
)

// EventProto encodes a RemovalEvent in protobuf wire format without
// generated code. It is schema-compatible with:
//
//	message RemovalEvent {
//	  string ns = 1;
//	  string key = 2;
//	  uint32 reason = 3;
//	  uint64 gen = 4;
//	  int64 at_unix_nano = 5;
//	}
//
// Unknown fields are skipped on decode.
type EventProto struct{}

var _ Codec[gencache.RemovalEvent] = EventProto{}

const (
	fieldNamespace protowire.Number = 1
	fieldKey       protowire.Number = 2
	fieldReason    protowire.Number = 3
	fieldGen       protowire.Number = 4
	fieldAt        protowire.Number = 5
)

func (EventProto) Encode(ev gencache.RemovalEvent) ([]byte, error) {
	b := make([]byte, 0, 32+len(ev.Namespace)+len(ev.Key))
	if ev.Namespace != "" {
		b = protowire.AppendTag(b, fieldNamespace, protowire.BytesType)
		b = protowire.AppendString(b, ev.Namespace)
	}
	if ev.Key != "" {
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendString(b, ev.Key)
	}
	if ev.Reason != 0 {
		b = protowire.AppendTag(b, fieldReason, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ev.Reason))
	}
	if ev.Generation != 0 {
		b = protowire.AppendTag(b, fieldGen, protowire.VarintType)
		b = protowire.AppendVarint(b, ev.Generation)
	}
	if !ev.At.IsZero() {
		b = protowire.AppendTag(b, fieldAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ev.At.UnixNano()))
	}
	return b, nil
}

func (EventProto) Decode(b []byte) (gencache.RemovalEvent, error) {
	var ev gencache.RemovalEvent
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return gencache.RemovalEvent{}, fmt.Errorf("codec: proto tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldNamespace && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return gencache.RemovalEvent{}, fmt.Errorf("codec: proto ns: %w", protowire.ParseError(m))
			}
			ev.Namespace, n = v, m
		case num == fieldKey && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return gencache.RemovalEvent{}, fmt.Errorf("codec: proto key: %w", protowire.ParseError(m))
			}
			ev.Key, n = v, m
		case num == fieldReason && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return gencache.RemovalEvent{}, fmt.Errorf("codec: proto reason: %w", protowire.ParseError(m))
			}
			if v > 0xFF {
				return gencache.RemovalEvent{}, fmt.Errorf("codec: proto reason %d out of range", v)
			}
			ev.Reason, n = gencache.RemovalReason(v), m
		case num == fieldGen && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return gencache.RemovalEvent{}, fmt.Errorf("codec: proto gen: %w", protowire.ParseError(m))
			}
			ev.Generation, n = v, m
		case num == fieldAt && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return gencache.RemovalEvent{}, fmt.Errorf("codec: proto at: %w", protowire.ParseError(m))
			}
			ev.At, n = time.Unix(0, int64(v)).UTC(), m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return gencache.RemovalEvent{}, fmt.Errorf("codec: proto field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return ev, nil
}
