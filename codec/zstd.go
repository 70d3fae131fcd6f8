package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/blockmt/zmt/internal/envelope"
)

// zstdFrameMagic is the magic number a native, non-skippable zstd frame
// begins with — what spec §4.8's fallback path looks for when the stream
// doesn't start with the skippable-frame envelope.
const zstdFrameMagic = 0xFD2FB528

// zstdFamilyMarker identifies blocks produced by the zstd adapter in a
// long-form envelope.
const zstdFamilyMarker envelope.FamilyMarker = 0x5A53 // "ZS"

// zstdCodec wraps klauspost/compress/zstd, a full zstd implementation that
// can report compressed output size ahead of time, so it drives the
// long-form (16-byte) envelope with an uncompressed-size hint.
type zstdCodec struct{}

// NewZstd returns the default Codec: a per-block zstd frame wrapped in a
// skippable-frame envelope, exactly the convention the envelope's magic
// number is drawn from.
func NewZstd() Codec { return zstdCodec{} }

func (zstdCodec) Name() string                       { return "zstd" }
func (zstdCodec) FamilyMarker() envelope.FamilyMarker { return zstdFamilyMarker }
func (zstdCodec) SupportsSizeHint() bool              { return true }
func (zstdCodec) LevelRange() (min, max int)          { return 1, 22 }

// zstdBlockSizeTable mirrors the shape of zstd's own level-keyed default
// block size table (spec §9 notes this varies by codec); values are in
// bytes and chosen to keep per-frame memory bounded at high levels while
// favoring throughput at low ones.
var zstdBlockSizeTable = []struct {
	maxLevel  int
	blockSize int
}{
	{3, 4 << 20},
	{9, 2 << 20},
	{15, 1 << 20},
	{19, 512 << 10},
	{22, 256 << 10},
}

func (zstdCodec) DefaultBlockSize(level int) int {
	for _, row := range zstdBlockSizeTable {
		if level <= row.maxLevel {
			return row.blockSize
		}
	}
	return 256 << 10
}

func zstdEncoderLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (zstdCodec) NewWorkerState(level int) (WorkerState, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstdEncoderLevel(level)),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdWorkerState{enc: enc, dec: dec}, nil
}

type zstdWorkerState struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// MaxCompressedSize uses a conservative worst-case expansion: the source
// size plus one sixteenth of it plus a fixed 128 bytes per frame.
func (*zstdWorkerState) MaxCompressedSize(srcLen int) int {
	return srcLen + srcLen/16 + 128
}

func (w *zstdWorkerState) EncodeBlock(dst, src []byte) ([]byte, error) {
	if w.MaxCompressedSize(len(src)) > cap(dst)-len(dst) {
		return nil, ErrBudgetExceeded
	}
	return w.enc.EncodeAll(src, dst), nil
}

func (w *zstdWorkerState) DecodeBlock(dst, src []byte) ([]byte, error) {
	return w.dec.DecodeAll(src, dst)
}

func (w *zstdWorkerState) Close() error {
	w.dec.Close()
	return w.enc.Close()
}

func (zstdCodec) FrameMagic() (uint32, bool) { return zstdFrameMagic, true }

// NewStreamDecoder wraps src in a streaming zstd decoder for spec §4.8's
// single-threaded fallback, used when the input is a plain zstd stream
// rather than a sequence of skippable-frame envelopes.
func (zstdCodec) NewStreamDecoder(src io.Reader) (StreamDecoder, error) {
	dec, err := zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return zstdStreamDecoder{dec}, nil
}

// zstdStreamDecoder adapts *zstd.Decoder's argless Close to the
// io.Closer-shaped Close() error StreamDecoder expects.
type zstdStreamDecoder struct {
	dec *zstd.Decoder
}

func (d zstdStreamDecoder) Read(p []byte) (int, error) { return d.dec.Read(p) }

func (d zstdStreamDecoder) Close() error {
	d.dec.Close()
	return nil
}
