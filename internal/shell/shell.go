// Package shell is the HTTP face of metrotune: JSON intents that drive the
// metronome and tuner, and a WebSocket stream of render snapshots pushed at
// display refresh cadence.
//
// Routes:
//
//	POST /api/metronome/start
//	POST /api/metronome/stop
//	PUT  /api/metronome/tempo        {"bpm": 120}
//	POST /api/metronome/tempo/step   {"delta": -1}
//	POST /api/tuner/activate
//	POST /api/tuner/deactivate
//	GET  /api/state
//	GET  /api/stream                 (WebSocket)
//
// Every intent answers with the resulting [Snapshot].
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/metrotune/internal/metronome"
	"github.com/MrWong99/metrotune/internal/observe"
	"github.com/MrWong99/metrotune/internal/pitch"
	"github.com/MrWong99/metrotune/pkg/audio"
)

// DefaultRefreshRate is the stream push rate in Hz.
const DefaultRefreshRate = 60

const (
	maxBodyBytes = 1 << 10
	writeTimeout = 2 * time.Second
)

// Metronome is the scheduler surface the shell drives.
// [*metronome.Scheduler] satisfies it.
type Metronome interface {
	Start(ctx context.Context) error
	Stop()
	SetTempo(bpm int) int
	StepTempo(delta int) int
	Sync() metronome.State
}

// Tuner is the detector surface the shell drives.
// [*pitch.Detector] satisfies it.
type Tuner interface {
	Activate(ctx context.Context) error
	Deactivate() error
	Active() bool
	Sample() pitch.Sample
}

var (
	_ Metronome = (*metronome.Scheduler)(nil)
	_ Tuner     = (*pitch.Detector)(nil)
)

// Capture reads both engines once and builds the render snapshot.
func Capture(m Metronome, t Tuner) Snapshot {
	return Snapshot{
		Metronome: NewMetronomeView(m.Sync()),
		Tuner:     NewTunerView(t.Active(), t.Sample()),
	}
}

// Option configures a [Server].
type Option func(*Server)

// WithRefreshRate sets the stream push rate in Hz. Non-positive values are
// ignored.
func WithRefreshRate(hz int) Option {
	return func(s *Server) {
		if hz > 0 {
			s.interval = time.Second / time.Duration(hz)
		}
	}
}

// WithOriginPatterns allows cross-origin WebSocket clients whose Origin host
// matches one of patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.origins = append(s.origins, patterns...)
	}
}

// Server serves the shell routes. It holds no state of its own.
type Server struct {
	metronome Metronome
	tuner     Tuner
	interval  time.Duration
	origins   []string
}

// New creates a [Server] driving m and t.
func New(m Metronome, t Tuner, opts ...Option) *Server {
	s := &Server{
		metronome: m,
		tuner:     t,
		interval:  time.Second / DefaultRefreshRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the shell routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/metronome/start", s.handleStart)
	mux.HandleFunc("POST /api/metronome/stop", s.handleStop)
	mux.HandleFunc("PUT /api/metronome/tempo", s.handleTempo)
	mux.HandleFunc("POST /api/metronome/tempo/step", s.handleStep)
	mux.HandleFunc("POST /api/tuner/activate", s.handleActivate)
	mux.HandleFunc("POST /api/tuner/deactivate", s.handleDeactivate)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/stream", s.handleStream)
}

// Snapshot reads both engines once.
func (s *Server) Snapshot() Snapshot {
	return Capture(s.metronome, s.tuner)
}

// ─── Intents ──────────────────────────────────────────────────────────────────

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.metronome.Start(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.metronome.Stop()
	s.reply(w)
}

type tempoRequest struct {
	BPM *int `json:"bpm"`
}

func (s *Server) handleTempo(w http.ResponseWriter, r *http.Request) {
	var req tempoRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.BPM == nil {
		s.fail(w, r, badRequest("missing field \"bpm\""))
		return
	}
	s.metronome.SetTempo(*req.BPM)
	s.reply(w)
}

type stepRequest struct {
	Delta int `json:"delta"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.metronome.StepTempo(req.Delta)
	s.reply(w)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.tuner.Activate(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.reply(w)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	// Release problems are the detector's to log; the tuner is off either way.
	if err := s.tuner.Deactivate(); err != nil {
		observe.Logger(r.Context()).Debug("shell: tuner released with errors", "err", err)
	}
	s.reply(w)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.reply(w)
}

// ─── Stream ───────────────────────────────────────────────────────────────────

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		// Accept has already written the HTTP error.
		observe.Logger(r.Context()).Debug("shell: stream upgrade refused", "err", err)
		return
	}
	defer conn.CloseNow()

	// The stream is push-only; CloseRead handles control frames and cancels
	// ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.push(ctx, conn); err != nil {
			if ctx.Err() == nil {
				observe.Logger(r.Context()).Debug("shell: stream write failed", "err", err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ─── Responses ────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("malformed request body: " + err.Error())
	}
	return nil
}

func (s *Server) reply(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// fail maps err onto a status code. Device refusals are expected user-facing
// outcomes and log at warn; anything unrecognised is a 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		level  = slog.LevelError
		bad    badRequest
	)
	switch {
	case errors.Is(err, audio.ErrAudioUnavailable):
		status, level = http.StatusServiceUnavailable, slog.LevelWarn
	case errors.Is(err, audio.ErrMicrophoneAccessDenied):
		status, level = http.StatusForbidden, slog.LevelWarn
	case errors.As(err, &bad):
		status, level = http.StatusBadRequest, slog.LevelDebug
	}
	observe.Logger(r.Context()).Log(r.Context(), level, "shell: intent failed",
		"path", r.URL.Path,
		"status", status,
		"err", err,
	)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
