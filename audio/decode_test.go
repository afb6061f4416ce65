package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeWAV writes 16-bit PCM samples through the wav encoder and returns
// the file bytes, the same shape shard records carry.
func encodeWAV(t *testing.T, samples []int, channels, rate int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &gaudio.IntBuffer{
		Data:           samples,
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encoding wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing file: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading wav back: %v", err)
	}
	return raw
}

func TestDecodeWAV(t *testing.T) {
	raw := encodeWAV(t, []int{0, 16384, -16384, 8192}, 1, 16000)
	pcm, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pcm.Channels != 1 || pcm.Rate != 16000 || pcm.Frames() != 4 {
		t.Fatalf("got channels=%d rate=%d frames=%d", pcm.Channels, pcm.Rate, pcm.Frames())
	}
	want := []float64{0, 0.5, -0.5, 0.25}
	for i, w := range want {
		if math.Abs(float64(pcm.Samples[i])-w) > 1e-4 {
			t.Fatalf("sample %d: got %v, want %v", i, pcm.Samples[i], w)
		}
	}
}

func TestDecodeWAVStereo(t *testing.T) {
	raw := encodeWAV(t, []int{100, -100, 200, -200}, 2, 44100)
	pcm, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pcm.Channels != 2 || pcm.Frames() != 2 {
		t.Fatalf("got channels=%d frames=%d", pcm.Channels, pcm.Frames())
	}
	if pcm.Samples[0] <= 0 || pcm.Samples[1] >= 0 {
		t.Fatalf("interleaving wrong: %v", pcm.Samples)
	}
}

func TestDecodeUnknownContainer(t *testing.T) {
	if _, err := Decode([]byte("OggS\x00\x02 not supported")); err == nil {
		t.Fatalf("expect error for unknown container")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatalf("expect error for empty input")
	}
}
