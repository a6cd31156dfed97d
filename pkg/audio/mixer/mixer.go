package mixer

import (
	"container/heap"
	"math"
	"sync"

	"github.com/MrWong99/metrotune/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Clock = (*Mixer)(nil)

// defaultQueueCap is the initial capacity hint for the pending queue.
const defaultQueueCap = 16

// Option configures a [Mixer] during construction.
type Option func(*Mixer)

// WithGain sets the master gain applied after summing voices. The result is
// clamped to [-1, 1].
func WithGain(g float64) Option {
	return func(m *Mixer) {
		m.gain = g
	}
}

// WithQueueCapacity sets the initial capacity hint for the pending queue.
// This does not impose a hard limit; the queue grows as needed.
func WithQueueCapacity(n int) Option {
	return func(m *Mixer) {
		if n > 0 {
			m.pending = make(voiceHeap, 0, n)
		}
	}
}

// playing is a voice that has reached its start frame.
type playing struct {
	voice audio.Voice
	start int64
	end   int64
}

// Mixer sums scheduled voices into a mono stream and keeps the audio clock.
//
// Render (or Read) is expected to be called from a single device goroutine;
// Schedule and CurrentTime may be called concurrently from anywhere.
type Mixer struct {
	rate float64
	gain float64

	mu      sync.Mutex
	pending voiceHeap
	active  []playing
	seq     uint64
	frame   int64 // frames rendered so far
	scratch []float32
}

// New creates a Mixer for the given sample rate.
func New(sampleRate int, opts ...Option) *Mixer {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	m := &Mixer{
		rate:    float64(sampleRate),
		gain:    1,
		pending: make(voiceHeap, 0, defaultQueueCap),
	}
	for _, o := range opts {
		o(m)
	}
	heap.Init(&m.pending)
	return m
}

// SampleRate returns the render rate in Hz.
func (m *Mixer) SampleRate() int { return int(m.rate) }

// CurrentTime returns the number of rendered frames expressed in seconds.
func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.frame) / m.rate
}

// Schedule queues v to start at clock timestamp at. Timestamps already in the
// past start on the next rendered frame.
func (m *Mixer) Schedule(v audio.Voice, at float64) {
	start := int64(math.Round(at * m.rate))
	m.mu.Lock()
	defer m.mu.Unlock()
	if start < m.frame {
		start = m.frame
	}
	m.seq++
	heap.Push(&m.pending, entry{voice: v, start: start, seq: m.seq})
}

// Pending returns the number of voices that have not started yet.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Active returns the number of voices currently sounding.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Render fills out with the next len(out) mono frames and advances the clock.
func (m *Mixer) Render(out []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range out {
		n := m.frame + int64(i)
		for len(m.pending) > 0 && m.pending[0].start <= n {
			e := heap.Pop(&m.pending).(entry)
			dur := int64(math.Ceil(e.voice.Duration() * m.rate))
			m.active = append(m.active, playing{voice: e.voice, start: e.start, end: e.start + dur})
		}

		var sum float64
		live := m.active[:0]
		for _, p := range m.active {
			if n >= p.end {
				continue
			}
			sum += p.voice.Sample(float64(n-p.start) / m.rate)
			live = append(live, p)
		}
		for j := len(live); j < len(m.active); j++ {
			m.active[j] = playing{}
		}
		m.active = live
		out[i] = float32(audio.Clamp(sum * m.gain))
	}
	m.frame += int64(len(out))
}

// RenderInterleaved renders len(out)/channels frames and duplicates every
// mono sample across all channels.
func (m *Mixer) RenderInterleaved(out []float32, channels int) {
	if channels <= 1 {
		m.Render(out)
		return
	}
	frames := len(out) / channels
	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	mono := m.scratch[:frames]
	m.Render(mono)
	for i, s := range mono {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
}

// Read implements [io.Reader] by rendering little-endian float32 mono frames.
// It never returns an error; a trailing partial sample is left unwritten.
func (m *Mixer) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if cap(m.scratch) < frames {
		m.scratch = make([]float32, frames)
	}
	mono := m.scratch[:frames]
	m.Render(mono)
	return audio.PutFloat32LE(p, mono), nil
}
