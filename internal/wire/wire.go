package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version    byte = 1
	kindSingle byte = 1
	kindBatch  byte = 2

	// MaxBatch bounds the item count accepted by DecodeBatch.
	MaxBatch = 1 << 16
)

var (
	ErrCorrupt = errors.New("gencache: corrupt event frame")
	magic4     = [...]byte{'G', 'C', 'E', 'V'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Single: magic(4) | ver(1) | kind(1=single) | codec(1) | plen(u32 be) | payload(plen)
func EncodeSingle(codec byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 1 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSingle)
	buf.WriteByte(codec)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

func DecodeSingle(b []byte) (codec byte, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindSingle {
		return 0, nil, ErrCorrupt
	}
	codec = b[6]
	plen := int(binary.BigEndian.Uint32(b[7:11]))
	if plen != len(b)-hdr {
		return 0, nil, ErrCorrupt
	}
	return codec, b[hdr:], nil
}

// Batch:
//
//	magic(4) | ver(1) | kind(2=batch) | codec(1) | n(u32 be)
//	plen(u32 be) | payload(plen) * n
//
// All payloads in a batch share one codec.
func EncodeBatch(codec byte, payloads [][]byte) []byte {
	total := 4 + 1 + 1 + 1 + 4
	for _, p := range payloads {
		total += 4 + len(p)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindBatch)
	buf.WriteByte(codec)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payloads)))
	buf.Write(u4[:])

	for _, p := range payloads {
		binary.BigEndian.PutUint32(u4[:], uint32(len(p)))
		buf.Write(u4[:])
		buf.Write(p)
	}
	return buf.Bytes()
}

func DecodeBatch(b []byte) (codec byte, payloads [][]byte, err error) {
	const hdr = 4 + 1 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindBatch {
		return 0, nil, ErrCorrupt
	}
	codec = b[6]
	n := int(binary.BigEndian.Uint32(b[7:11]))
	// each item needs at least its length prefix
	if n > MaxBatch || n > (len(b)-hdr)/4 {
		return 0, nil, ErrCorrupt
	}

	off := hdr
	payloads = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		plen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if plen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		payloads = append(payloads, b[off:off+plen])
		off += plen
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return codec, payloads, nil
}

// Decode accepts either frame kind and returns its payloads.
func Decode(b []byte) (codec byte, payloads [][]byte, err error) {
	if len(b) < 6 || !hasMagic(b) {
		return 0, nil, ErrCorrupt
	}
	switch b[5] {
	case kindSingle:
		c, p, err := DecodeSingle(b)
		if err != nil {
			return 0, nil, err
		}
		return c, [][]byte{p}, nil
	case kindBatch:
		return DecodeBatch(b)
	default:
		return 0, nil, ErrCorrupt
	}
}
