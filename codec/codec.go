// Package codec defines the boundary between the parallel framing engine
// and the single-threaded block compressor it wraps. A Codec is treated as
// a pure function from a source block to a compressed payload, plus the
// reverse; the framing engine never inspects what's inside one.
package codec

import (
	"errors"
	"io"

	"github.com/blockmt/zmt/internal/envelope"
)

// ErrBudgetExceeded is returned by WorkerState.EncodeBlock when the
// compressed output would not fit within dst's remaining capacity. The
// caller doubles the buffer and retries, bounded by a deterministic cap.
var ErrBudgetExceeded = errors.New("codec: compressed output exceeds buffer budget")

// Codec is the pluggable underlying compressor. Concrete adapters wrap a
// real single-threaded compression library.
type Codec interface {
	// Name identifies the codec for diagnostics and CLI output.
	Name() string

	// FamilyMarker is stamped into long-form envelopes so a decoder can
	// confirm it is reading frames its own codec produced.
	FamilyMarker() envelope.FamilyMarker

	// SupportsSizeHint reports whether blocks compressed by this codec use
	// the long envelope form (uncompressed-size hint included) or the
	// short form.
	SupportsSizeHint() bool

	// DefaultBlockSize returns the block size, in bytes, used at the given
	// level when the caller configured no explicit block size.
	DefaultBlockSize(level int) int

	// LevelRange returns the inclusive range of compression levels this
	// codec accepts.
	LevelRange() (min, max int)

	// NewWorkerState returns per-worker codec state. Each worker owns
	// exactly one; state is never shared between workers.
	NewWorkerState(level int) (WorkerState, error)

	// FrameMagic returns the magic number this codec's own single-stream
	// format begins with, for spec §4.8's fallback dispatch, and whether
	// this codec supports being read that way at all. A block-only codec
	// with no native stream framing (ok == false) has no fallback path.
	FrameMagic() (magic uint32, ok bool)

	// NewStreamDecoder wraps src in this codec's native single-threaded
	// streaming decoder, for the fallback path. It is only called when
	// FrameMagic reports ok == true.
	NewStreamDecoder(src io.Reader) (StreamDecoder, error)
}

// StreamDecoder is an incremental single-stream decoder, used only by the
// spec §4.8 fallback path.
type StreamDecoder interface {
	io.Reader
	// Close releases resources the decoder holds open.
	Close() error
}

// WorkerState is the codec-specific state a single worker owns for the
// lifetime of one compress or decompress call. It is not safe for
// concurrent use.
type WorkerState interface {
	// MaxCompressedSize bounds EncodeBlock's output length for a source of
	// the given length, used to size a block's output buffer before the
	// first encode attempt.
	MaxCompressedSize(srcLen int) int

	// EncodeBlock compresses src and appends the result to dst, returning
	// the extended slice. If the result would exceed dst's capacity it
	// returns ErrBudgetExceeded and leaves dst unmodified; the caller
	// grows dst's capacity and retries.
	EncodeBlock(dst, src []byte) ([]byte, error)

	// DecodeBlock decompresses src — one complete, length-delimited block
	// — and appends the result to dst, growing dst as needed.
	DecodeBlock(dst, src []byte) ([]byte, error)

	// Close releases any resources the state holds open.
	Close() error
}

// ByName returns the built-in codec registered under name, or false if
// none matches.
func ByName(name string) (Codec, bool) {
	switch name {
	case "zstd":
		return NewZstd(), true
	case "s2":
		return NewS2(), true
	default:
		return nil, false
	}
}
