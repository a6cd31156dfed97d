// Package metronome implements the beat scheduler: a look-ahead loop that
// places click voices on the audio output's hardware clock so that beat
// timing is independent of when the loop itself gets to run.
package metronome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/metrotune/internal/observe"
	"github.com/MrWong99/metrotune/pkg/audio"
)

// Tempo limits and defaults.
const (
	MinBPM          = 40
	MaxBPM          = 240
	DefaultBPM      = 100
	BeatsPerMeasure = 2

	DefaultLookahead        = 100 * time.Millisecond
	DefaultScheduleInterval = 25 * time.Millisecond
	DefaultStartLatency     = 50 * time.Millisecond
)

// ClampTempo limits bpm to [MinBPM, MaxBPM].
func ClampTempo(bpm int) int {
	return min(max(bpm, MinBPM), MaxBPM)
}

// Event is one beat handed to the audio output.
type Event struct {
	Beat      int
	AudioTime float64
}

// State is a read-only snapshot of the scheduler for rendering.
type State struct {
	BPM     int
	Running bool

	// CurrentBeat is the index the next scheduled beat will carry.
	CurrentBeat int

	// VisibleBeat is the index of the most recently heard beat, or -1 when
	// none has been heard since the last start.
	VisibleBeat int

	// Pending is the number of scheduled beats not yet heard.
	Pending int
}

// OutputProvider opens the audio output. [audio.Platform] satisfies it.
type OutputProvider interface {
	OpenOutput(ctx context.Context) (audio.Output, error)
}

// Timer is a pending callback created by an [AfterFunc].
type Timer interface {
	Stop() bool
}

// AfterFunc arranges for f to run after d. The callback must run on its own
// goroutine; implementations must never invoke f synchronously.
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithAfterFunc replaces the look-ahead timer. Tests inject a manual timer.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = f }
}

// WithLookahead sets how far ahead of the audio clock beats are scheduled.
func WithLookahead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lookahead = d
		}
	}
}

// WithScheduleInterval sets the look-ahead timer cadence.
func WithScheduleInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithStartLatency sets the gap between Start and the first beat.
func WithStartLatency(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.startLatency = d
		}
	}
}

// WithTempo sets the initial tempo (clamped).
func WithTempo(bpm int) Option {
	return func(s *Scheduler) { s.bpm = ClampTempo(bpm) }
}

// WithClick sets the voice played on every beat.
func WithClick(c Click) Option {
	return func(s *Scheduler) { s.click = c }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler is the metronome engine. The audio output is opened lazily on
// the first Start and reused across start/stop cycles until Close.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	provider     OutputProvider
	afterFunc    AfterFunc
	lookahead    time.Duration
	interval     time.Duration
	startLatency time.Duration
	metrics      *observe.Metrics

	mu           sync.Mutex
	out          audio.Output
	click        Click
	bpm          int
	running      bool
	beat         int
	nextBeatTime float64
	queue        []Event
	visible      int
	timer        Timer
	gen          uint64 // bumped on every stop; stale timer callbacks compare against it
	opening      *openAttempt
}

// New creates a stopped Scheduler that opens its output from p.
func New(p OutputProvider, opts ...Option) *Scheduler {
	s := &Scheduler{
		provider:     p,
		afterFunc:    timeAfterFunc,
		lookahead:    DefaultLookahead,
		interval:     DefaultScheduleInterval,
		startLatency: DefaultStartLatency,
		click:        DefaultClick(),
		bpm:          DefaultBPM,
		visible:      -1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Start begins playback. The first beat is anchored start latency after the
// current audio clock reading. Calling Start while running, or while another
// Start is still opening the output, is a no-op. Errors wrap
// [audio.ErrAudioUnavailable].
//
// The output is opened without holding the scheduler lock, so state readers
// keep answering while a device is slow to open. A Stop or Close issued
// during that time wins: Start then returns nil and leaves the scheduler
// stopped.
func (s *Scheduler) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.running || s.opening != nil {
		s.mu.Unlock()
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "metronome.start")
	defer func() { observe.EndSpan(span, err) }()

	if s.out != nil {
		s.startLocked(ctx)
		s.mu.Unlock()
		return nil
	}

	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	attempt := &openAttempt{cancel: cancel}
	s.opening = attempt
	s.mu.Unlock()

	out, err := s.provider.OpenOutput(openCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opening = nil

	switch {
	case err != nil && attempt.aborted:
		observe.Logger(ctx).Debug("metronome start abandoned", "err", err)
		return nil
	case err != nil:
		s.metrics.RecordAudioError(ctx, observe.ErrorKindOutput)
		if !errors.Is(err, audio.ErrAudioUnavailable) {
			err = fmt.Errorf("%w: %w", audio.ErrAudioUnavailable, err)
		}
		observe.Logger(ctx).Warn("metronome start failed", "err", err)
		return fmt.Errorf("metronome: start: %w", err)
	case attempt.release:
		if cerr := out.Close(); cerr != nil {
			observe.Logger(ctx).Warn("metronome: close abandoned output", "err", cerr)
		}
		return nil
	}

	s.out = out
	if attempt.aborted {
		return nil
	}
	s.startLocked(ctx)
	return nil
}

// openAttempt tracks a Start that is waiting for the output device.
type openAttempt struct {
	cancel context.CancelFunc

	// aborted is set by Stop: the output is kept but playback does not
	// begin. release is set by Close: the output is closed as well.
	aborted bool
	release bool
}

func (s *Scheduler) startLocked(ctx context.Context) {
	s.running = true
	s.beat = 0
	s.visible = -1
	s.queue = s.queue[:0]
	s.nextBeatTime = s.out.CurrentTime() + s.startLatency.Seconds()
	s.metrics.MetronomeRunning.Add(ctx, 1)

	firstBeat := s.nextBeatTime
	gen := s.gen
	s.scheduleAhead(ctx)
	s.timer = s.afterFunc(s.interval, func() { s.tick(gen) })

	observe.Logger(ctx).Info("metronome started", "bpm", s.bpm, "first_beat", firstBeat)
}

// Stop halts scheduling. Beats already handed to the output finish playing.
// No timer callback acts after Stop returns. A Start still opening the
// output is abandoned. Stop is safe to call at any time, any number of
// times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortOpenLocked(false)
	s.stopLocked()
}

func (s *Scheduler) abortOpenLocked(release bool) {
	if s.opening == nil {
		return
	}
	s.opening.aborted = true
	s.opening.release = s.opening.release || release
	s.opening.cancel()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	s.running = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.beat = 0
	s.visible = -1
	s.queue = s.queue[:0]
	s.metrics.MetronomeRunning.Add(context.Background(), -1)
	slog.Info("metronome stopped")
}

// Close stops the scheduler and releases the audio output. An output still
// being opened is closed as soon as it arrives.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortOpenLocked(true)
	s.stopLocked()
	if s.out == nil {
		return nil
	}
	out := s.out
	s.out = nil
	if err := out.Close(); err != nil {
		return fmt.Errorf("metronome: close output: %w", err)
	}
	return nil
}

// SetTempo stores bpm clamped to [MinBPM, MaxBPM] and returns the stored
// value. Beats already scheduled keep their timing.
func (s *Scheduler) SetTempo(bpm int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpm = ClampTempo(bpm)
	return s.bpm
}

// StepTempo adjusts the tempo by delta and returns the stored value.
func (s *Scheduler) StepTempo(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpm = ClampTempo(s.bpm + delta)
	return s.bpm
}

// Tempo returns the stored tempo.
func (s *Scheduler) Tempo() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

// Running reports whether the scheduler is running.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// CurrentBeat returns the index the next scheduled beat will carry.
func (s *Scheduler) CurrentBeat() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beat
}

// SetClick replaces the click voice for beats scheduled from now on.
func (s *Scheduler) SetClick(c Click) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.click = c
}

// Snapshot returns the current state without retiring beats.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Sync retires every scheduled beat whose audio time has passed, updates the
// visible beat and returns the resulting state. Shells call it once per
// display frame.
func (s *Scheduler) Sync() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		s.retireLocked(s.out.CurrentTime())
	}
	return s.stateLocked()
}

// retireLocked drops every queued beat heard before now and records the last
// one as visible.
func (s *Scheduler) retireLocked(now float64) {
	n := 0
	for n < len(s.queue) && s.queue[n].AudioTime < now {
		s.visible = s.queue[n].Beat
		n++
	}
	if n > 0 {
		s.queue = append(s.queue[:0], s.queue[n:]...)
	}
}

func (s *Scheduler) stateLocked() State {
	return State{
		BPM:         s.bpm,
		Running:     s.running,
		CurrentBeat: s.beat,
		VisibleBeat: s.visible,
		Pending:     len(s.queue),
	}
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || gen != s.gen {
		return
	}
	s.scheduleAhead(context.Background())
	s.timer = s.afterFunc(s.interval, func() { s.tick(gen) })
}

// scheduleAhead plays every beat falling inside the look-ahead window. Heard
// beats are retired first so the queue stays bounded when nobody calls Sync.
func (s *Scheduler) scheduleAhead(ctx context.Context) {
	now := s.out.CurrentTime()
	s.retireLocked(now)
	horizon := now + s.lookahead.Seconds()
	for s.nextBeatTime < horizon {
		s.out.Play(s.click, s.nextBeatTime)
		s.queue = append(s.queue, Event{Beat: s.beat, AudioTime: s.nextBeatTime})
		s.metrics.RecordBeat(ctx, s.beat, s.nextBeatTime-now)

		s.nextBeatTime += 60 / float64(s.bpm)
		s.beat = (s.beat + 1) % BeatsPerMeasure
	}
}
