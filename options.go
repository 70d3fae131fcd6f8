package zmt

import (
	"go.uber.org/zap"

	"github.com/blockmt/zmt/codec"
)

// MaxThreads is the upper bound of spec §4.7's [1,128] thread range;
// NewCCtx/NewDCtx reject anything outside [1, MaxThreads].
const MaxThreads = 128

// MaxBlockSize is the largest block size a context will accept. Above
// this, the long envelope form's two-byte, 64KiB-unit hint field cannot
// represent the block, per spec §9's open question.
const MaxBlockSize = (1 << 32) - (64 << 10)

type commonOpts struct {
	threads   int
	level     int
	blockSize int
	codec     codec.Codec
	logger    *zap.Logger
	verbose   bool
}

func defaultCommonOpts() commonOpts {
	return commonOpts{
		threads: 1,
		level:   3,
		codec:   codec.NewZstd(),
		logger:  zap.NewNop(),
	}
}

// CCtxOption configures a compression context.
type CCtxOption func(*commonOpts)

// DCtxOption configures a decompression context.
type DCtxOption func(*commonOpts)

// Threads sets the worker count. NewCCtx/NewDCtx reject a count outside
// [1, MaxThreads] with ErrParameterUnsupported.
func Threads(n int) CCtxOption {
	return func(o *commonOpts) { o.threads = n }
}

// DThreads is Threads for NewDCtx; kept as a distinct name since Go option
// functions for CCtx and DCtx are different types.
func DThreads(n int) DCtxOption {
	return func(o *commonOpts) { o.threads = n }
}

// Level sets the codec compression level. Out-of-range values are
// rejected at NewCCtx time with ErrParameterUnsupported.
func Level(level int) CCtxOption {
	return func(o *commonOpts) { o.level = level }
}

// BlockSize sets an explicit block size in bytes, overriding the codec's
// level-keyed default. Zero means "use the codec default".
func BlockSize(n int) CCtxOption {
	return func(o *commonOpts) { o.blockSize = n }
}

// DBlockSize sets the block size used by the single-threaded fallback
// decompressor (spec §4.8). On the framed, multithreaded path block sizes
// come from the envelope; there it only sets the initial output-buffer
// capacity for frames that carry no size hint.
func DBlockSize(n int) DCtxOption {
	return func(o *commonOpts) { o.blockSize = n }
}

// WithCodec selects the underlying block codec. The default is zstd.
func WithCodec(c codec.Codec) CCtxOption {
	return func(o *commonOpts) { o.codec = c }
}

// WithDCodec is WithCodec for NewDCtx.
func WithDCodec(c codec.Codec) DCtxOption {
	return func(o *commonOpts) { o.codec = c }
}

// Verbose enables debug-level trace logging of the start and end of each
// Compress call; no per-block messages are logged.
func Verbose(v bool) CCtxOption {
	return func(o *commonOpts) { o.verbose = v }
}

// DVerbose is Verbose for NewDCtx.
func DVerbose(v bool) DCtxOption {
	return func(o *commonOpts) { o.verbose = v }
}

// WithLogger sets the zap logger used for trace output. The default is a
// no-op logger.
func WithLogger(l *zap.Logger) CCtxOption {
	return func(o *commonOpts) { o.logger = l }
}

// WithDLogger is WithLogger for NewDCtx.
func WithDLogger(l *zap.Logger) DCtxOption {
	return func(o *commonOpts) { o.logger = l }
}
