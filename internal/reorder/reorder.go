// Package reorder implements the in-order emission queue that lets workers
// complete compression or decompression out of order while the writer gate
// still sees strictly increasing frame indices.
//
// The original C implementation (see the design notes carried over into
// SPEC_FULL.md) threads three intrusive linked lists — free, busy, done —
// through each write-list entry. This package keeps the free/done lists but
// drops "busy" as an explicit list: once a worker Acquires a buffer it owns
// it outright until it Commits or Releases it, so there is nothing for a
// third list to track. done is keyed by frame index rather than linked,
// which keeps the drain loop a single map lookup instead of a linear scan.
package reorder

import "github.com/blockmt/zmt/internal/bufpool"

// Queue is not safe for concurrent use. Every method here is called while
// the caller already holds the writer gate's mutex, so the gate itself
// provides the only synchronization the queue needs.
type Queue struct {
	pool     bufpool.Pool
	done     map[uint64]*bufpool.Buffer
	expected uint64
}

// New returns a Queue whose writer cursor starts at frame 0.
func New() *Queue {
	return &Queue{done: make(map[uint64]*bufpool.Buffer)}
}

// Acquire returns a free buffer, allocating one if none is available, and
// transfers its ownership to the caller (normally a worker about to fill
// it).
func (q *Queue) Acquire() *bufpool.Buffer {
	return q.pool.Get()
}

// Release returns a buffer the caller acquired but never committed — the
// EOF and error exits of a worker loop — to the free list.
func (q *Queue) Release(buf *bufpool.Buffer) {
	q.pool.Put(buf)
}

// Commit records buf as the completed output for frameIndex, then drains:
// while the expected frame is present in done, it is handed to sink in
// order, its buffer returned to the free list, and the cursor advanced. The
// drain restarts its lookup from the (now advanced) cursor each time, so it
// is correct regardless of the order frames are committed in.
//
// sink's error, if any, is returned immediately; the buffer that produced
// it is not returned to the free list, matching the "no further writes
// after an error" propagation policy of the writer gate.
func (q *Queue) Commit(frameIndex uint64, buf *bufpool.Buffer, sink func(*bufpool.Buffer) error) error {
	q.done[frameIndex] = buf
	for {
		next, ok := q.done[q.expected]
		if !ok {
			return nil
		}
		if err := sink(next); err != nil {
			delete(q.done, q.expected)
			return err
		}
		delete(q.done, q.expected)
		q.pool.Put(next)
		q.expected++
	}
}

// Expected returns the next frame index the queue will emit; it equals the
// number of frames already written to the sink.
func (q *Queue) Expected() uint64 {
	return q.expected
}

// Pending reports how many completed-but-not-yet-written frames the queue
// is holding. A clean shutdown leaves this at zero.
func (q *Queue) Pending() int {
	return len(q.done)
}

// Drain releases every buffer still on the free list, for use during
// context teardown. It does not touch done; callers should only call Drain
// once Pending() == 0.
func (q *Queue) Drain() []*bufpool.Buffer {
	return q.pool.Drain()
}
