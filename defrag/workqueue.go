package defrag

import "sync"

// workQueue is the shared queue of occupied cluster indices still needing
// work: an ordered sequence supporting pop-next, push-back, and
// reserve-if-present, all guarded by one mutex held only briefly per
// operation. An item removed by Pop or Reserve is "in flight" until the
// holder calls Discard (resolved, no longer needed) or PushBack
// (re-enqueue).
//
// A worker blocks in Pop until either an item is available or the queue has
// fully drained (nothing pending and nothing in flight). That is the only
// way every worker can agree the run is complete without a race where one
// worker exits while another is about to push an item back.
type workQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pending  []uint32
	inFlight int
	aborted  bool
}

func newWorkQueue(items []uint32) *workQueue {
	q := &workQueue{pending: append([]uint32(nil), items...)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Pop removes and returns the item at the front of the queue, blocking if
// the queue is momentarily empty but other items are still in flight. It
// returns ok=false once the queue is fully drained or Abort has been
// called.
func (q *workQueue) Pop() (uint32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.aborted {
			return 0, false
		}
		if len(q.pending) > 0 {
			item := q.pending[0]
			q.pending = q.pending[1:]
			q.inFlight++
			return item, true
		}
		if q.inFlight == 0 {
			// Nothing pending and nothing anyone else could still push back:
			// wake any other waiters so they observe the same thing.
			q.cond.Broadcast()
			return 0, false
		}
		q.cond.Wait()
	}
}

// PushBack returns an in-flight item to the tail of the pending queue.
func (q *workQueue) PushBack(item uint32) {
	q.mu.Lock()
	q.pending = append(q.pending, item)
	q.inFlight--
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Discard marks an in-flight item as permanently resolved; it does not
// return to the queue.
func (q *workQueue) Discard() {
	q.mu.Lock()
	q.inFlight--
	if q.inFlight == 0 && len(q.pending) == 0 {
		q.cond.Broadcast()
	}
	q.mu.Unlock()
}

// Reserve removes value from the pending queue if it is still there,
// marking it in flight and returning true. It returns false if value is not
// currently pending (another worker already holds it).
func (q *workQueue) Reserve(value uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, v := range q.pending {
		if v == value {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.inFlight++
			return true
		}
	}
	return false
}

// Abort causes every blocked and future Pop to return immediately with
// ok=false, used to unwind the worker pool after one worker hits a fatal
// error.
func (q *workQueue) Abort() {
	q.mu.Lock()
	q.aborted = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
