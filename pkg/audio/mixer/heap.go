// Package mixer renders scheduled [audio.Voice] values into a mono float
// stream. The number of frames rendered so far is the output's hardware
// clock, so a voice scheduled for timestamp t starts on exactly the frame
// round(t * sampleRate) regardless of when Schedule was called.
package mixer

import "github.com/MrWong99/metrotune/pkg/audio"

// entry wraps an [audio.Voice] with scheduling metadata for the pending
// queue. The seq field keeps insertion order for voices that share a start
// frame.
type entry struct {
	voice audio.Voice
	start int64  // first frame the voice is audible on
	seq   uint64 // monotonic insertion order for FIFO tie-breaking
}

// voiceHeap implements [container/heap.Interface] as a min-heap ordered by
// start frame (ascending), with FIFO tie-breaking on seq (ascending).
type voiceHeap []entry

func (h voiceHeap) Len() int { return len(h) }

// Less reports whether element i starts before element j.
func (h voiceHeap) Less(i, j int) bool {
	if h[i].start != h[j].start {
		return h[i].start < h[j].start
	}
	return h[i].seq < h[j].seq
}

func (h voiceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *voiceHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *voiceHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}
