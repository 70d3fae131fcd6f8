package codec

import (
	"errors"
	"io"

	"github.com/klauspost/compress/s2"

	"github.com/blockmt/zmt/internal/envelope"
)

const s2FamilyMarker envelope.FamilyMarker = 0x5332 // "S2"

// s2Codec wraps klauspost/compress/s2's block API directly — it has no
// notion of an uncompressed-size hint ahead of encoding, so it drives the
// short-form (12-byte) envelope.
type s2Codec struct{}

// NewS2 returns the fast block codec, the "frame-based fast compressor"
// alternative named in spec §1.
func NewS2() Codec { return s2Codec{} }

func (s2Codec) Name() string                       { return "s2" }
func (s2Codec) FamilyMarker() envelope.FamilyMarker { return s2FamilyMarker }
func (s2Codec) SupportsSizeHint() bool              { return false }
func (s2Codec) LevelRange() (min, max int)          { return 1, 3 }

func (s2Codec) DefaultBlockSize(int) int { return 1 << 20 }

func (s2Codec) NewWorkerState(level int) (WorkerState, error) {
	if level < 1 || level > 3 {
		level = 1
	}
	return &s2WorkerState{level: level}, nil
}

type s2WorkerState struct {
	level int
}

func (*s2WorkerState) MaxCompressedSize(srcLen int) int {
	return s2.MaxEncodedLen(srcLen)
}

func (w *s2WorkerState) EncodeBlock(dst, src []byte) ([]byte, error) {
	maxLen := s2.MaxEncodedLen(len(src))
	if maxLen < 0 {
		maxLen = 0
	}
	start := len(dst)
	if cap(dst)-start < maxLen {
		return nil, ErrBudgetExceeded
	}
	scratch := dst[start : start : start+maxLen]
	var encoded []byte
	switch w.level {
	case 1:
		encoded = s2.Encode(scratch[:maxLen], src)
	case 2:
		encoded = s2.EncodeBetter(scratch[:maxLen], src)
	default:
		encoded = s2.EncodeBest(scratch[:maxLen], src)
	}
	return dst[:start+len(encoded)], nil
}

func (*s2WorkerState) DecodeBlock(dst, src []byte) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, err
	}
	start := len(dst)
	if cap(dst)-start < n {
		grown := make([]byte, start, start+n)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+n]
	if _, err := s2.Decode(dst[start:], src); err != nil {
		return nil, err
	}
	return dst, nil
}

func (*s2WorkerState) Close() error { return nil }

// errNoS2Stream is returned by NewStreamDecoder; this adapter only exercises
// s2's block API, so it advertises no native single-stream fallback format.
var errNoS2Stream = errors.New("s2: codec adapter has no stream fallback")

func (s2Codec) FrameMagic() (uint32, bool) { return 0, false }

func (s2Codec) NewStreamDecoder(io.Reader) (StreamDecoder, error) {
	return nil, errNoS2Stream
}
