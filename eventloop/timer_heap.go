package eventloop

import "container/heap"

// timerEntry is the TimerEntry of the data model: a deadline, the callback
// to run, and a cancelled tombstone bit. Interval timers reuse the same
// entry across firings (re-pushed with a later deadline) so the single ref
// they hold is never released except by cancellation.
type timerEntry struct {
	deadline  int64 // unix milliseconds
	seq       int64 // insertion order, used as a stable tie-break
	thunk     func()
	cancelled bool
	interval  int64 // >0 for set_interval entries; re-armed after firing
	index     int   // heap.Interface bookkeeping

	// refReleased guards the fire/cancel mutual exclusion: exactly one of
	// the firing path (one-shot only) and CancelFunc ever flips this from
	// false to true, and only that side releases the timer's ref.
	refReleased bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func (h *timerHeap) push(e *timerEntry) { heap.Push(h, e) }

func (h *timerHeap) peek() *timerEntry {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

func (h *timerHeap) pop() *timerEntry { return heap.Pop(h).(*timerEntry) }
