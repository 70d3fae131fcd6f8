package zmt

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/blockmt/zmt/codec"
)

// ctxState tracks the Fresh/Running/Poisoned/Destroyed lifecycle of spec
// §4.7.
type ctxState int32

const (
	stateFresh ctxState = iota
	stateRunning
	statePoisoned
	stateDestroyed
)

var (
	errContextDestroyed = errors.New("context is destroyed")
	errContextBusy      = errors.New("context is already running or poisoned")
)

// CCtx is a compression context: spec §4.7's createCCtx/compressCCtx pair.
// It owns the configured codec, block size and thread count, and the
// counters accumulated by the last compress call. A CCtx is safe to reuse
// across successive Compress calls as long as each one succeeds; once a
// worker reports an error the context is Poisoned and Compress returns an
// error immediately without running.
type CCtx struct {
	mu    sync.Mutex
	state ctxState

	threads   int
	level     int
	blockSize int
	codec     codec.Codec
	logger    *zap.Logger
	verbose   bool

	frames  atomic.Uint64
	insize  atomic.Uint64
	outsize atomic.Uint64
}

// NewCCtx creates a compression context. threads, level and block size are
// validated against the selected codec's constraints; invalid combinations
// return a *Error with kind ErrParameterUnsupported instead of a context.
func NewCCtx(opts ...CCtxOption) (*CCtx, error) {
	o := defaultCommonOpts()
	for _, fn := range opts {
		fn(&o)
	}
	if o.threads < 1 || o.threads > MaxThreads {
		return nil, newError(ErrParameterUnsupported, fmt.Errorf("threads %d outside [1,%d]", o.threads, MaxThreads))
	}
	min, max := o.codec.LevelRange()
	if o.level < min || o.level > max {
		return nil, newError(ErrParameterUnsupported, fmt.Errorf("level %d outside [%d,%d] for codec %q", o.level, min, max, o.codec.Name()))
	}
	if o.blockSize == 0 {
		o.blockSize = o.codec.DefaultBlockSize(o.level)
	}
	if o.blockSize <= 0 || o.blockSize > MaxBlockSize {
		return nil, newError(ErrParameterUnsupported, fmt.Errorf("block size %d outside (0,%d]", o.blockSize, MaxBlockSize))
	}
	return &CCtx{
		threads:   o.threads,
		level:     o.level,
		blockSize: o.blockSize,
		codec:     o.codec,
		logger:    o.logger,
		verbose:   o.verbose,
	}, nil
}

func (c *CCtx) trace(msg string, fields ...zap.Field) {
	if c.verbose {
		c.logger.Debug(msg, fields...)
	}
}

// Compress spawns c.threads workers, each running the read/compress/write
// pipeline of spec §4.6, and returns once every worker has joined. It
// returns the first non-nil error any worker produced; other workers'
// errors are discarded once observed, since they all report failures
// stemming from the same poisoned run.
func (c *CCtx) Compress(read ReadFunc, write WriteFunc) error {
	c.mu.Lock()
	switch c.state {
	case stateDestroyed:
		c.mu.Unlock()
		return newError(ErrParameterUnsupported, errContextDestroyed)
	case stateRunning, statePoisoned:
		c.mu.Unlock()
		return newError(ErrParameterUnsupported, errContextBusy)
	}
	c.state = stateRunning
	c.mu.Unlock()

	c.trace("compress starting", zap.Int("threads", c.threads), zap.Int("blockSize", c.blockSize))

	rg := newCompressReaderGate(read)
	wg := newWriterGate(write)

	errs := make([]*Error, c.threads)
	var workers sync.WaitGroup
	workers.Add(c.threads)
	for i := 0; i < c.threads; i++ {
		go func(i int) {
			defer workers.Done()
			ws, err := c.codec.NewWorkerState(c.level)
			if err != nil {
				errs[i] = newError(ErrMemoryAllocation, err)
				return
			}
			defer ws.Close()
			errs[i] = compressWorker(c.blockSize, c.codec, ws, rg, wg)
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
	c.frames.Store(frames)
	c.insize.Store(insize)
	c.outsize.Store(wg.outSize())

	c.mu.Lock()
	if first != nil {
		c.state = statePoisoned
	} else {
		c.state = stateFresh
	}
	c.mu.Unlock()

	c.trace("compress done", zap.Uint64("frames", c.frames.Load()), zap.Uint64("insize", c.insize.Load()), zap.Uint64("outsize", c.outsize.Load()))

	if first != nil {
		return first
	}
	return nil
}

// GetInsize returns the number of source bytes read by the last
// compress call.
func (c *CCtx) GetInsize() uint64 { return c.insize.Load() }

// GetOutsize returns the number of bytes written by the last compress
// call.
func (c *CCtx) GetOutsize() uint64 { return c.outsize.Load() }

// GetFrames returns the number of frames emitted by the last compress
// call.
func (c *CCtx) GetFrames() uint64 { return c.frames.Load() }

// Close transitions the context to Destroyed. A destroyed context may
// still be queried for counters but can never run another Compress.
func (c *CCtx) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateDestroyed
	return nil
}
