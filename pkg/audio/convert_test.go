package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/metrotune/pkg/audio"
)

func TestDownmix_Stereo(t *testing.T) {
	t.Parallel()

	// Two stereo frames: L=0.5,R=0.25 and L=-0.5,R=-1
	got := audio.Downmix(nil, []float32{0.5, 0.25, -0.5, -1}, 2)
	want := []float32{0.375, -0.75}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2, 0.3}
	got := audio.Downmix(nil, in, 1)
	if &got[0] != &in[0] {
		t.Error("mono input should be returned without copying")
	}
}

func TestDownmix_ReusesDst(t *testing.T) {
	t.Parallel()

	dst := make([]float32, 0, 8)
	got := audio.Downmix(dst, []float32{1, 1, 0, 0}, 2)
	if &got[0] != &dst[:1][0] {
		t.Error("expected dst backing array to be reused")
	}
}

func TestPutFloat32LE(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 1, -0.5}
	buf := make([]byte, 12)
	n := audio.PutFloat32LE(buf, samples)
	if n != 12 {
		t.Fatalf("bytes written: got %d, want 12", n)
	}
	for i, want := range samples {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		if got != want {
			t.Errorf("sample %d: got %v, want %v", i, got, want)
		}
	}
}

func TestPutFloat32LE_ShortDst(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 6)
	if n := audio.PutFloat32LE(buf, []float32{1, 2, 3}); n != 4 {
		t.Errorf("bytes written: got %d, want 4", n)
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{1.5, 1},
		{-2, -1},
	}
	for _, tt := range tests {
		if got := audio.Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}
