package portaudio

import (
	"sync"

	"github.com/MrWong99/metrotune/pkg/audio"
	"github.com/MrWong99/metrotune/pkg/audio/mixer"
)

var _ audio.Output = (*output)(nil)

// output renders a mixer into a PortAudio playback stream.
type output struct {
	mixer    *mixer.Mixer
	channels int
	stream   stream

	closeOnce sync.Once
	closeErr  error
}

func newOutput(m *mixer.Mixer, channels int) *output {
	return &output{mixer: m, channels: channels}
}

// process is the PortAudio stream callback.
func (o *output) process(out []float32) {
	o.mixer.RenderInterleaved(out, o.channels)
}

func (o *output) CurrentTime() float64 { return o.mixer.CurrentTime() }

func (o *output) SampleRate() int { return o.mixer.SampleRate() }

func (o *output) Play(v audio.Voice, at float64) { o.mixer.Schedule(v, at) }

func (o *output) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = closeStream(o.stream)
	})
	return o.closeErr
}
