package zmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/blockmt/zmt/codec"
	"github.com/blockmt/zmt/internal/envelope"
)

var errUnrecognizedStream = errors.New("input begins with neither the skippable-frame magic nor the codec's native frame magic")

// DCtx is a decompression context: spec §4.7's createDCtx/decompressDCtx
// pair. Decompress dispatches on the stream's first four bytes: the
// skippable-frame magic selects the multithreaded gate/reorder path of
// §4.4–§4.6, anything matching the configured codec's own frame magic
// selects the single-threaded fallback of §4.8, and anything else is
// data_error.
type DCtx struct {
	mu    sync.Mutex
	state ctxState

	threads   int
	blockSize int
	codec     codec.Codec
	logger    *zap.Logger
	verbose   bool

	frames  atomic.Uint64
	insize  atomic.Uint64
	outsize atomic.Uint64
}

// NewDCtx creates a decompression context. blockSize sets the
// single-threaded fallback's output chunk size; the framed path derives its
// block sizing from each envelope and uses blockSize only as the initial
// output-buffer capacity for frames that carry no size hint.
func NewDCtx(opts ...DCtxOption) (*DCtx, error) {
	o := defaultCommonOpts()
	for _, fn := range opts {
		fn(&o)
	}
	if o.threads < 1 || o.threads > MaxThreads {
		return nil, newError(ErrParameterUnsupported, fmt.Errorf("threads %d outside [1,%d]", o.threads, MaxThreads))
	}
	if o.blockSize == 0 {
		o.blockSize = o.codec.DefaultBlockSize(1)
	}
	if o.blockSize <= 0 || o.blockSize > MaxBlockSize {
		return nil, newError(ErrParameterUnsupported, fmt.Errorf("block size %d outside (0,%d]", o.blockSize, MaxBlockSize))
	}
	return &DCtx{
		threads:   o.threads,
		blockSize: o.blockSize,
		codec:     o.codec,
		logger:    o.logger,
		verbose:   o.verbose,
	}, nil
}

func (d *DCtx) trace(msg string, fields ...zap.Field) {
	if d.verbose {
		d.logger.Debug(msg, fields...)
	}
}

// Decompress reads the stream's first four bytes to choose between the
// multithreaded framed path and the single-threaded fallback, then runs
// whichever applies to completion.
func (d *DCtx) Decompress(read ReadFunc, write WriteFunc) error {
	d.mu.Lock()
	switch d.state {
	case stateDestroyed:
		d.mu.Unlock()
		return newError(ErrParameterUnsupported, errContextDestroyed)
	case stateRunning, statePoisoned:
		d.mu.Unlock()
		return newError(ErrParameterUnsupported, errContextBusy)
	}
	d.state = stateRunning
	d.mu.Unlock()

	var magicBuf [4]byte
	n, code := read(magicBuf[:])
	if code != CodeOK {
		return d.finish(readCallbackError(code))
	}
	if n == 0 {
		return d.finish(nil)
	}
	if n != len(magicBuf) {
		return d.finish(newError(ErrDataError, errShortHeader))
	}
	magic := binary.LittleEndian.Uint32(magicBuf[:])

	switch {
	case magic == envelope.Magic:
		return d.finish(d.decompressFramed(magic, read, write))
	default:
		if fallbackMagic, ok := d.codec.FrameMagic(); ok && magic == fallbackMagic {
			return d.finish(d.decompressFallback(magicBuf, read, write))
		}
		return d.finish(newError(ErrDataError, errUnrecognizedStream))
	}
}

func (d *DCtx) decompressFramed(prefetchedMagic uint32, read ReadFunc, write WriteFunc) *Error {
	d.trace("decompress starting", zap.Int("threads", d.threads))

	rg := newDecompressReaderGate(read, prefetchedMagic)
	wg := newWriterGate(write)

	errs := make([]*Error, d.threads)
	var workers sync.WaitGroup
	workers.Add(d.threads)
	for i := 0; i < d.threads; i++ {
		go func(i int) {
			defer workers.Done()
			ws, err := d.codec.NewWorkerState(1)
			if err != nil {
				errs[i] = newError(ErrMemoryAllocation, err)
				return
			}
			defer ws.Close()
			errs[i] = decompressWorker(d.blockSize, d.codec, ws, rg, wg)
		}(i)
	}
	workers.Wait()

	var first *Error
	for _, e := range errs {
		if e != nil {
			first = e
			break
		}
	}

	frames, insize := rg.snapshot()
	d.frames.Store(frames)
	d.insize.Store(insize)
	d.outsize.Store(wg.outSize())

	d.trace("decompress done", zap.Uint64("frames", d.frames.Load()), zap.Uint64("outsize", d.outsize.Load()))
	return first
}

// decompressFallback runs spec §4.8's single-threaded path: no gates, no
// reorder queue, a single codec stream decoder fed directly from read and
// drained straight to write.
func (d *DCtx) decompressFallback(prefetched [4]byte, read ReadFunc, write WriteFunc) *Error {
	d.trace("decompress fallback activated")

	src := &readFuncReader{read: read, pending: prefetched[:]}
	dec, err := d.codec.NewStreamDecoder(src)
	if err != nil {
		return newError(ErrFrameDecompress, err)
	}
	defer dec.Close()

	chunk := make([]byte, d.blockSize)
	var insize, outsize, frames uint64
	for {
		n, err := dec.Read(chunk)
		if n > 0 {
			wn, code := write(chunk[:n])
			if code != CodeOK {
				return writeCallbackError(code)
			}
			if wn != n {
				return newError(ErrWriteFail, errors.New("short write"))
			}
			outsize += uint64(wn)
			frames++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			var zerr *Error
			if errors.As(err, &zerr) {
				return zerr
			}
			return newError(ErrFrameDecompress, err)
		}
	}
	insize = src.consumed

	d.frames.Store(frames)
	d.insize.Store(insize)
	d.outsize.Store(outsize)
	return nil
}

func (d *DCtx) finish(err *Error) error {
	d.mu.Lock()
	if err != nil {
		d.state = statePoisoned
	} else {
		d.state = stateFresh
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return nil
}

// GetInsize returns the number of source bytes consumed by the last
// decompress call.
func (d *DCtx) GetInsize() uint64 { return d.insize.Load() }

// GetOutsize returns the number of bytes written by the last decompress
// call.
func (d *DCtx) GetOutsize() uint64 { return d.outsize.Load() }

// GetFrames returns the number of frames (framed path) or produced chunks
// (fallback path) emitted by the last decompress call.
func (d *DCtx) GetFrames() uint64 { return d.frames.Load() }

// Close transitions the context to Destroyed.
func (d *DCtx) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = stateDestroyed
	return nil
}

// readFuncReader adapts a ReadFunc into an io.Reader for the fallback
// path's stream decoder, replaying the four magic bytes the dispatcher
// already consumed before passing through to read.
type readFuncReader struct {
	read     ReadFunc
	pending  []byte
	consumed uint64
	eof      bool
}

func (r *readFuncReader) Read(p []byte) (int, error) {
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		r.consumed += uint64(n)
		return n, nil
	}
	if r.eof {
		return 0, io.EOF
	}
	n, code := r.read(p)
	if code != CodeOK {
		return n, readCallbackError(code)
	}
	r.consumed += uint64(n)
	if n == 0 {
		r.eof = true
		return 0, io.EOF
	}
	return n, nil
}
