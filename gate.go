package zmt

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/blockmt/zmt/internal/bufpool"
	"github.com/blockmt/zmt/internal/envelope"
	"github.com/blockmt/zmt/internal/reorder"
)

var (
	errShortHeader      = errors.New("truncated envelope header")
	errTruncatedPayload = errors.New("truncated block payload")
)

// writerGate is the serialized section described in spec §4.5: a mutex,
// the reorder queue it owns, and the single write callback every worker
// eventually funnels its output through. Compression and decompression
// workers share this type — both only ever need "acquire a buffer, later
// commit it under a frame index".
type writerGate struct {
	mu      sync.Mutex
	write   WriteFunc
	queue   *reorder.Queue
	outsize uint64
}

func newWriterGate(write WriteFunc) *writerGate {
	return &writerGate{write: write, queue: reorder.New()}
}

func (wg *writerGate) acquire() *bufpool.Buffer {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.queue.Acquire()
}

// release returns a buffer a worker claimed but never filled (a clean EOF
// with no block to emit) back to the free list.
func (wg *writerGate) release(buf *bufpool.Buffer) {
	wg.mu.Lock()
	wg.queue.Release(buf)
	wg.mu.Unlock()
}

// commit publishes buf as frameIndex's output and drains every
// now-contiguous completed frame to the sink, in order.
func (wg *writerGate) commit(frameIndex uint64, buf *bufpool.Buffer) *Error {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	err := wg.queue.Commit(frameIndex, buf, func(b *bufpool.Buffer) error {
		n, code := wg.write(b.Data)
		if code != CodeOK {
			return writeCallbackError(code)
		}
		if n != len(b.Data) {
			return newError(ErrWriteFail, errors.New("short write"))
		}
		wg.outsize += uint64(n)
		return nil
	})
	if err == nil {
		return nil
	}
	if zerr, ok := err.(*Error); ok {
		return zerr
	}
	return newError(ErrWriteFail, err)
}

func (wg *writerGate) outSize() uint64 {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.outsize
}

func (wg *writerGate) pending() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.queue.Pending()
}

// drainFree releases every buffer on the free list, for context teardown.
func (wg *writerGate) drainFree() []*bufpool.Buffer {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.queue.Drain()
}

// compressReaderGate is spec §4.4's compress-path reader gate: exclusive,
// one readCb call per acquisition, assigns the next frame index and
// updates insize.
type compressReaderGate struct {
	mu        sync.Mutex
	read      ReadFunc
	nextFrame uint64
	insize    uint64
	eof       bool
}

func newCompressReaderGate(read ReadFunc) *compressReaderGate {
	return &compressReaderGate{read: read}
}

// readBlock reads one block of up to len(scratch) bytes into scratch. ok is false at a
// clean end of stream; zerr is non-nil only on an actual callback failure.
func (rg *compressReaderGate) readBlock(scratch []byte) (frameIndex uint64, n int, ok bool, zerr *Error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if rg.eof {
		return 0, 0, false, nil
	}
	got, code := rg.read(scratch)
	if code != CodeOK {
		return 0, 0, false, readCallbackError(code)
	}
	if got == 0 {
		rg.eof = true
		return 0, 0, false, nil
	}
	frameIndex = rg.nextFrame
	rg.nextFrame++
	rg.insize += uint64(got)
	// A short read signals the source is exhausted: this block is the
	// last one, and the gate short-circuits any later acquisition to an
	// immediate EOF rather than invoking read again.
	if got < len(scratch) {
		rg.eof = true
	}
	return frameIndex, got, true, nil
}

func (rg *compressReaderGate) snapshot() (frames, insize uint64) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	return rg.nextFrame, rg.insize
}

// decompressReaderGate is spec §4.4's decompress-path reader gate: it
// additionally parses envelopes to learn each block's payload length and,
// for the long form, its uncompressed-size hint.
type decompressReaderGate struct {
	mu           sync.Mutex
	read         ReadFunc
	nextFrame    uint64
	insize       uint64
	eof          bool
	pendingMagic *uint32 // set once, for the stream's first header only
}

func newDecompressReaderGate(read ReadFunc, prefetchedMagic uint32) *decompressReaderGate {
	m := prefetchedMagic
	return &decompressReaderGate{read: read, pendingMagic: &m}
}

// readFrame reads one envelope header and its payload. payload, if it has
// enough capacity, is reused; otherwise a new slice is allocated. ok is
// false at a frame-boundary EOF.
func (rg *decompressReaderGate) readFrame(payload []byte) (frameIndex uint64, hdr envelope.Header, data []byte, ok bool, zerr *Error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	if rg.eof {
		return 0, envelope.Header{}, nil, false, nil
	}

	var magic uint32
	var core [8]byte
	if rg.pendingMagic != nil {
		magic = *rg.pendingMagic
		rg.pendingMagic = nil
		n, code := rg.read(core[:])
		if code != CodeOK {
			return 0, envelope.Header{}, nil, false, readCallbackError(code)
		}
		if n == 0 {
			rg.eof = true
			return 0, envelope.Header{}, nil, false, nil
		}
		if n != len(core) {
			rg.eof = true
			return 0, envelope.Header{}, nil, false, newError(ErrDataError, errShortHeader)
		}
	} else {
		var full [envelope.ShortHeaderSize]byte
		n, code := rg.read(full[:])
		if code != CodeOK {
			return 0, envelope.Header{}, nil, false, readCallbackError(code)
		}
		if n == 0 {
			rg.eof = true
			return 0, envelope.Header{}, nil, false, nil
		}
		if n != len(full) {
			rg.eof = true
			return 0, envelope.Header{}, nil, false, newError(ErrDataError, errShortHeader)
		}
		magic = binary.LittleEndian.Uint32(full[0:4])
		copy(core[:], full[4:12])
	}

	isLong, payloadLen, err := envelope.ParseCore(magic, core)
	if err != nil {
		rg.eof = true
		return 0, envelope.Header{}, nil, false, newError(ErrDataError, err)
	}

	h := envelope.Header{PayloadLen: payloadLen}
	headerBytes := uint64(envelope.ShortHeaderSize)
	if isLong {
		var tail [4]byte
		n, code := rg.read(tail[:])
		if code != CodeOK {
			return 0, envelope.Header{}, nil, false, readCallbackError(code)
		}
		if n != len(tail) {
			rg.eof = true
			return 0, envelope.Header{}, nil, false, newError(ErrDataError, errShortHeader)
		}
		family, hintUnits := envelope.ParseTail(tail)
		h.Long = true
		h.Family = family
		h.HintUnits = hintUnits
		headerBytes += 4
	}

	if cap(payload) < int(payloadLen) {
		payload = make([]byte, payloadLen)
	}
	payload = payload[:payloadLen]
	got := 0
	for got < len(payload) {
		m, code := rg.read(payload[got:])
		if code != CodeOK {
			return 0, envelope.Header{}, nil, false, readCallbackError(code)
		}
		if m == 0 {
			return 0, envelope.Header{}, nil, false, newError(ErrDataError, errTruncatedPayload)
		}
		got += m
	}

	frameIndex = rg.nextFrame
	rg.nextFrame++
	rg.insize += headerBytes + uint64(payloadLen)
	return frameIndex, h, payload, true, nil
}

func (rg *decompressReaderGate) snapshot() (frames, insize uint64) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	return rg.nextFrame, rg.insize
}
