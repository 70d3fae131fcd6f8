package zmt

import (
	"errors"

	"github.com/blockmt/zmt/codec"
	"github.com/blockmt/zmt/internal/envelope"
)

// maxEncodeRetries bounds the compress worker's grow-and-retry loop when
// the codec reports its output would not fit the current buffer budget.
// Each retry doubles capacity, so this cap also bounds how far a single
// block's buffer can balloon before the worker gives up and reports
// frame_compress.
const maxEncodeRetries = 8

// compressWorker is the per-thread loop of spec §4.6's compress path:
// acquire a buffer under the writer gate, read one block under the reader
// gate, run the codec outside both gates, then commit under the writer
// gate. It runs until a clean EOF or the first error, whichever comes
// first.
func compressWorker(blockSize int, c codec.Codec, ws codec.WorkerState, rg *compressReaderGate, wg *writerGate) *Error {
	headerSize := envelope.ShortHeaderSize
	if c.SupportsSizeHint() {
		headerSize = envelope.LongHeaderSize
	}
	input := make([]byte, blockSize)

	for {
		buf := wg.acquire()
		buf.Grow(headerSize + ws.MaxCompressedSize(blockSize))

		frameIndex, n, ok, zerr := rg.readBlock(input)
		if zerr != nil {
			wg.release(buf)
			return zerr
		}
		if !ok {
			wg.release(buf)
			return nil
		}
		src := input[:n]

		buf.Data = buf.Data[:0:cap(buf.Data)]
		buf.Data = append(buf.Data, make([]byte, headerSize)...)

		var encodeErr error
		for attempt := 0; ; attempt++ {
			out, err := ws.EncodeBlock(buf.Data, src)
			if err == nil {
				buf.Data = out
				encodeErr = nil
				break
			}
			encodeErr = err
			if !errors.Is(err, codec.ErrBudgetExceeded) || attempt >= maxEncodeRetries {
				break
			}
			buf.Grow(cap(buf.Data) * 2)
		}
		if encodeErr != nil {
			wg.release(buf)
			return newError(ErrFrameCompress, encodeErr)
		}

		payloadLen := len(buf.Data) - headerSize
		last := n < len(input)
		var header []byte
		if c.SupportsSizeHint() {
			hintUnits := envelope.HintUnitsFor(n, blockSize, last)
			header = envelope.EncodeLong(nil, uint32(payloadLen), c.FamilyMarker(), hintUnits)
		} else {
			header = envelope.EncodeShort(nil, uint32(payloadLen))
		}
		copy(buf.Data[:headerSize], header)

		if zerrc := wg.commit(frameIndex, buf); zerrc != nil {
			return zerrc
		}
	}
}

// decompressWorker is spec §4.6's decompress path: the reader gate
// additionally parses the envelope to learn the payload length and, for
// the long form, the uncompressed-size hint used to size the output
// buffer before the codec runs.
func decompressWorker(blockSize int, c codec.Codec, ws codec.WorkerState, rg *decompressReaderGate, wg *writerGate) *Error {
	var payloadScratch []byte

	for {
		buf := wg.acquire()

		frameIndex, hdr, payload, ok, zerr := rg.readFrame(payloadScratch)
		if zerr != nil {
			wg.release(buf)
			return zerr
		}
		if !ok {
			wg.release(buf)
			return nil
		}
		payloadScratch = payload

		if err := envelope.CheckFamily(hdr, c.FamilyMarker()); err != nil {
			wg.release(buf)
			return newError(ErrDataError, err)
		}

		switch {
		case hdr.Long && hdr.UncompressedHint() > 0:
			buf.Grow(hdr.UncompressedHint())
		case blockSize > 0:
			buf.Grow(blockSize)
		}
		buf.Data = buf.Data[:0:cap(buf.Data)]

		out, err := ws.DecodeBlock(buf.Data, payload)
		if err != nil {
			wg.release(buf)
			return newError(ErrFrameDecompress, err)
		}
		buf.Data = out

		if zerrc := wg.commit(frameIndex, buf); zerrc != nil {
			return zerrc
		}
	}
}
