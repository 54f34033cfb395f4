package codec

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/unkn0wn-root/gencache"
)

var sample = gencache.RemovalEvent{
	Namespace:  "app:user",
	Key:        "42",
	Reason:     gencache.Evicted,
	Generation: 17,
	At:         time.Unix(1_700_000_000, 123_456_789).UTC(),
}

func sameEvent(a, b gencache.RemovalEvent) bool {
	return a.Namespace == b.Namespace && a.Key == b.Key && a.Reason == b.Reason &&
		a.Generation == b.Generation && a.At.Equal(b.At)
}

func TestEventCodecsRoundTrip(t *testing.T) {
	for _, id := range []ID{IDJSON, IDCBOR, IDMsgpack, IDProto} {
		t.Run(id.String(), func(t *testing.T) {
			c, err := ForEvents(id)
			if err != nil {
				t.Fatalf("ForEvents: %v", err)
			}
			b, err := c.Encode(sample)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := c.Decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !sameEvent(got, sample) {
				t.Fatalf("got %+v want %+v", got, sample)
			}
		})
	}
}

func TestEventFieldNames(t *testing.T) {
	b, err := JSONCodec[gencache.RemovalEvent]{}.Encode(sample)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"ns", "key", "reason", "gen", "at"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("json event missing %q: %s", k, b)
		}
	}
	if m["reason"] != float64(gencache.Evicted) {
		t.Fatalf("reason=%v", m["reason"])
	}

	mb, err := Msgpack[gencache.RemovalEvent]{}.Encode(sample)
	if err != nil {
		t.Fatal(err)
	}
	var mm map[string]any
	if err := msgpack.Unmarshal(mb, &mm); err != nil {
		t.Fatal(err)
	}
	if mm["ns"] != "app:user" || mm["key"] != "42" {
		t.Fatalf("msgpack event=%v", mm)
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("msgpack")
	if err != nil || id != IDMsgpack {
		t.Fatalf("ParseID(msgpack)=%v,%v", id, err)
	}
	if _, err := ParseID("yaml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
	if _, err := ForEvents(ID(99)); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c, err := NewCBOR[gencache.RemovalEvent](true)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := c.Encode(sample)
	b, _ := c.Encode(sample)
	if string(a) != string(b) {
		t.Fatal("deterministic encoding differs between calls")
	}
}

func TestLimitCodec(t *testing.T) {
	c := LimitCodec[gencache.RemovalEvent]{Inner: JSONCodec[gencache.RemovalEvent]{}, MaxDecode: 16}
	b, err := c.Encode(sample)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decode(b); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("want size error, got %v", err)
	}

	c.MaxDecode = 0
	if _, err := c.Decode(b); err != nil {
		t.Fatalf("unlimited decode: %v", err)
	}
}

func TestEventProtoSkipsUnknownFields(t *testing.T) {
	b, _ := EventProto{}.Encode(sample)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future field")

	got, err := EventProto{}.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sameEvent(got, sample) {
		t.Fatalf("got %+v", got)
	}
}

func TestEventProtoRejectsTruncated(t *testing.T) {
	b, _ := EventProto{}.Encode(sample)
	if _, err := (EventProto{}).Decode(b[:len(b)-3]); err == nil {
		t.Fatal("expected error on truncated input")
	}
}

func TestEventProtoZeroTime(t *testing.T) {
	ev := gencache.RemovalEvent{Namespace: "ns", Key: "k", Reason: gencache.Removed}
	b, _ := EventProto{}.Encode(ev)
	got, err := EventProto{}.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !got.At.IsZero() || got.Reason != gencache.Removed {
		t.Fatalf("got %+v", got)
	}
}
