package zmt

import (
	"io"
	"sync"

	"go.uber.org/multierr"
)

// Reader adapts a *DCtx to io.Reader, decompressing src in a background
// goroutine and piping the output through an io.Pipe. The shape — a
// goroutine driving the real work, an error channel, and an io.Pipe
// carrying bytes to the caller's Read — follows the same structure the
// teacher's own stream wrapper used for its scanner-driven decompressor.
type Reader struct {
	pr    *io.PipeReader
	errCh chan error
	wg    sync.WaitGroup
}

// NewReader starts decompressing src through dctx and returns an io.Reader
// for the result. dctx must not be used concurrently for anything else
// while the returned Reader is in use.
func NewReader(dctx *DCtx, src io.Reader) *Reader {
	pr, pw := io.Pipe()
	r := &Reader{pr: pr, errCh: make(chan error, 1)}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := dctx.Decompress(FromReader(src), FromWriter(pw))
		pw.CloseWithError(err)
		r.errCh <- err
		close(r.errCh)
	}()
	return r
}

// Read implements io.Reader.
func (r *Reader) Read(buf []byte) (int, error) {
	n, err := r.pr.Read(buf)
	if err == io.EOF {
		r.wg.Wait()
		if derr := <-r.errCh; derr != nil {
			return n, derr
		}
	}
	return n, err
}

// Close releases the pipe without waiting for decompression to finish;
// the background goroutine observes the broken pipe on its next write and
// exits.
func (r *Reader) Close() error {
	return r.pr.Close()
}

// Writer adapts a *CCtx to io.WriteCloser, compressing every byte written
// to it and emitting the compressed stream to dst. Close must be called to
// flush the final block and learn whether compression succeeded.
type Writer struct {
	pw    *io.PipeWriter
	errCh chan error
	wg    sync.WaitGroup
}

// NewWriter starts a compression pipeline that reads whatever is written
// to the returned Writer and emits cctx's compressed output to dst.
func NewWriter(cctx *CCtx, dst io.Writer) *Writer {
	pr, pw := io.Pipe()
	w := &Writer{pw: pw, errCh: make(chan error, 1)}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := cctx.Compress(FromReader(pr), FromWriter(dst))
		pr.CloseWithError(err)
		w.errCh <- err
		close(w.errCh)
	}()
	return w
}

// Write implements io.Writer.
func (w *Writer) Write(buf []byte) (int, error) {
	return w.pw.Write(buf)
}

// Close signals end of input, waits for the compressor to finish, and
// returns its error, if any, combined with any error from closing the
// pipe itself.
func (w *Writer) Close() error {
	closeErr := w.pw.Close()
	w.wg.Wait()
	return multierr.Append(closeErr, <-w.errCh)
}
