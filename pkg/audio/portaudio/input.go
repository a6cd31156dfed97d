package portaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/metrotune/pkg/audio"
)

var _ audio.Input = (*input)(nil)

// input fans a PortAudio capture stream out to attached sinks.
type input struct {
	rate     int
	channels int
	stream   stream
	live     atomic.Bool

	mu     sync.Mutex
	sinks  map[int]audio.Sink
	nextID int

	// Only touched from the stream callback.
	mono     []float32
	dispatch []audio.Sink
	frames   int64

	stopOnce  sync.Once
	stopErr   error
	closeOnce sync.Once
	closeErr  error
}

func newInput(rate, channels int) *input {
	return &input{rate: rate, channels: channels, sinks: make(map[int]audio.Sink)}
}

// process is the PortAudio stream callback.
func (i *input) process(in []float32) {
	mono := audio.Downmix(i.mono, in, i.channels)
	if i.channels > 1 {
		i.mono = mono
	}

	i.mu.Lock()
	i.dispatch = i.dispatch[:0]
	for _, s := range i.sinks {
		i.dispatch = append(i.dispatch, s)
	}
	i.mu.Unlock()

	f := audio.Frame{
		Samples:    mono,
		SampleRate: i.rate,
		Timestamp:  time.Duration(float64(i.frames) * float64(time.Second) / float64(i.rate)),
	}
	for _, s := range i.dispatch {
		s(f)
	}
	i.frames += int64(len(mono))
}

func (i *input) SampleRate() int { return i.rate }

func (i *input) Attach(sink audio.Sink) audio.Tap {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := i.nextID
	i.nextID++
	i.sinks[id] = sink
	return &tap{in: i, id: id}
}

func (i *input) Live() bool { return i.live.Load() }

func (i *input) Stop() error {
	i.stopOnce.Do(func() {
		i.live.Store(false)
		if err := i.stream.Stop(); err != nil {
			i.stopErr = fmt.Errorf("portaudio: stop input: %w", err)
		}
	})
	return i.stopErr
}

func (i *input) Close() error {
	i.closeOnce.Do(func() {
		_ = i.Stop()
		if err := i.stream.Close(); err != nil {
			i.closeErr = fmt.Errorf("portaudio: close input: %w", err)
		}
	})
	return i.closeErr
}

type tap struct {
	in   *input
	id   int
	once sync.Once
}

func (t *tap) Detach() {
	t.once.Do(func() {
		t.in.mu.Lock()
		defer t.in.mu.Unlock()
		delete(t.in.sinks, t.id)
	})
}

// closeStream stops then closes s, reporting both failures.
func closeStream(s stream) error {
	var errs []error
	if err := s.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop: %w", err))
	}
	if err := s.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("portaudio: %w", err)
	}
	return nil
}
