package kernel

import "github.com/dcsim/simcore/vtime"

// event is one pending delivery. tiebreaker is a monotonically increasing
// insertion sequence, guaranteeing FIFO delivery among events scheduled for
// the same deliveryTime (spec.md §4.A).
type event struct {
	deliveryTime vtime.Tick
	tiebreaker   uint64
	dest         procID
	from         procID
	payload      any
}

// eventHeap is a container/heap-backed priority queue keyed by
// (deliveryTime, tiebreaker), grounded on the teacher corpus's own use of
// container/heap for a min-heap of timers (see DESIGN.md).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].deliveryTime != h[j].deliveryTime {
		return h[i].deliveryTime < h[j].deliveryTime
	}
	return h[i].tiebreaker < h[j].tiebreaker
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
