// Package envelope encodes and parses the skippable-frame header that wraps
// every block on the wire. It is pure and stateless: given header fields it
// produces bytes, and given bytes it produces header fields or an error.
//
// Two forms exist. The short form carries only a payload length; the long
// form additionally carries a codec family marker and an uncompressed-size
// hint so a decoder can size its output buffer before running the codec.
// Field layout is fixed little-endian, mirroring the zstd skippable-frame
// convention that the magic number belongs to.
package envelope

import (
	"encoding/binary"
	"fmt"
)

// Magic is the skippable-frame magic number every envelope begins with.
const Magic uint32 = 0x184D2A50

// Header sizes in bytes, including the magic.
const (
	ShortHeaderSize = 12
	LongHeaderSize  = 16
)

// HintUnit is the granularity, in bytes, of the long form's uncompressed
// size hint.
const HintUnit = 64 * 1024

// MaxHintUnits is the largest value the two-byte hint field can carry.
const MaxHintUnits = 0xFFFF

// FamilyMarker identifies which BlockCodec produced a long-form envelope.
type FamilyMarker uint16

// Header is a fully parsed envelope, excluding its payload bytes.
type Header struct {
	Long       bool
	PayloadLen uint32
	Family     FamilyMarker
	HintUnits  uint16
}

// Size returns the number of header bytes (12 or 16) this header occupies
// on the wire.
func (h Header) Size() int {
	if h.Long {
		return LongHeaderSize
	}
	return ShortHeaderSize
}

// UncompressedHint returns the decoder output-buffer capacity implied by
// the hint, or 0 if this is a short-form header.
func (h Header) UncompressedHint() int {
	return int(h.HintUnits) * HintUnit
}

// EncodeShort appends a 12-byte short-form header to dst and returns the
// result.
func EncodeShort(dst []byte, payloadLen uint32) []byte {
	var buf [ShortHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], 4)
	binary.LittleEndian.PutUint32(buf[8:12], payloadLen)
	return append(dst, buf[:]...)
}

// EncodeLong appends a 16-byte long-form header to dst and returns the
// result.
func EncodeLong(dst []byte, payloadLen uint32, family FamilyMarker, hintUnits uint16) []byte {
	var buf [LongHeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], 8)
	binary.LittleEndian.PutUint32(buf[8:12], payloadLen)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(family))
	binary.LittleEndian.PutUint16(buf[14:16], hintUnits)
	return append(dst, buf[:]...)
}

// HintUnitsFor computes the 64KiB-unit hint for a block: the ceiling of the
// remaining source size for a short last block, or the configured block
// size otherwise. The result saturates at MaxHintUnits; block sizes large
// enough to saturate it are rejected at context creation, not here.
func HintUnitsFor(srcSize, blockSize int, last bool) uint16 {
	var units int
	if last {
		units = (srcSize + HintUnit - 1) / HintUnit
	} else {
		units = blockSize / HintUnit
	}
	if units > MaxHintUnits {
		units = MaxHintUnits
	}
	if units < 0 {
		units = 0
	}
	return uint16(units)
}

// ErrBadMagic, ErrBadLength and ErrBadFamily identify the specific ways a
// header can fail to parse; callers typically fold these into a single
// data_error kind but keep them distinct for diagnostics.
var (
	ErrBadMagic  = fmt.Errorf("envelope: bad magic")
	ErrBadLength = fmt.Errorf("envelope: inconsistent header length field")
	ErrBadFamily = fmt.Errorf("envelope: unexpected codec family marker")
)

// ParseCore parses the magic and the 8 bytes that follow it (the length
// field and the payload length). It reports whether a 4-byte tail
// (ParseTail) follows. magic must already have been read by the caller —
// on the very first header of a stream it was read by the outer dispatcher
// to distinguish multithreaded framing from a single-threaded stream; on
// every subsequent header it is read here as part of a full 12-byte read.
func ParseCore(magic uint32, rest [8]byte) (isLong bool, payloadLen uint32, err error) {
	if magic != Magic {
		return false, 0, ErrBadMagic
	}
	lengthField := binary.LittleEndian.Uint32(rest[0:4])
	payloadLen = binary.LittleEndian.Uint32(rest[4:8])
	switch lengthField {
	case 4:
		return false, payloadLen, nil
	case 8:
		return true, payloadLen, nil
	default:
		return false, 0, ErrBadLength
	}
}

// ParseTail parses the remaining 4 bytes of a long-form header, once
// ParseCore has reported isLong == true.
func ParseTail(rest [4]byte) (family FamilyMarker, hintUnits uint16) {
	family = FamilyMarker(binary.LittleEndian.Uint16(rest[0:2]))
	hintUnits = binary.LittleEndian.Uint16(rest[2:4])
	return
}

// Parse parses a complete header from buf, which must hold at least
// ShortHeaderSize bytes and, if the length field indicates the long form,
// at least LongHeaderSize bytes. It is a convenience wrapper around
// ParseCore/ParseTail for callers (tests, the list command) that already
// have the whole header in memory.
func Parse(buf []byte) (Header, error) {
	if len(buf) < ShortHeaderSize {
		return Header{}, fmt.Errorf("envelope: short buffer: %d bytes", len(buf))
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	var core [8]byte
	copy(core[:], buf[4:12])
	isLong, payloadLen, err := ParseCore(magic, core)
	if err != nil {
		return Header{}, err
	}
	if !isLong {
		return Header{PayloadLen: payloadLen}, nil
	}
	if len(buf) < LongHeaderSize {
		return Header{}, fmt.Errorf("envelope: short buffer for long form: %d bytes", len(buf))
	}
	var tail [4]byte
	copy(tail[:], buf[12:16])
	family, hintUnits := ParseTail(tail)
	return Header{Long: true, PayloadLen: payloadLen, Family: family, HintUnits: hintUnits}, nil
}

// CheckFamily validates a parsed long-form header's family marker against
// the marker a specific codec expects.
func CheckFamily(h Header, want FamilyMarker) error {
	if h.Long && h.Family != want {
		return fmt.Errorf("%w: got 0x%04x want 0x%04x", ErrBadFamily, h.Family, want)
	}
	return nil
}
