package dataset

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Ngomntu1q/CLAP/webdataset"
)

func TestCanonicalizeField(t *testing.T) {
	fields := map[string][]byte{
		"000001.flac": []byte("audio"),
		"json":        []byte("text"),
	}
	canonicalizeField(fields, "flac")
	if string(fields["flac"]) != "audio" {
		t.Fatalf("renamed field missing: %v", fields)
	}
	if _, ok := fields["000001.flac"]; ok {
		t.Fatalf("original key should be removed")
	}
	if string(fields["json"]) != "text" {
		t.Fatalf("unrelated field touched")
	}
}

func TestCanonicalizeFieldExactMatchUntouched(t *testing.T) {
	fields := map[string][]byte{"flac": []byte("audio")}
	canonicalizeField(fields, "flac")
	if string(fields["flac"]) != "audio" || len(fields) != 1 {
		t.Fatalf("exact key must not be renamed: %v", fields)
	}
}

func TestCanonicalizeFieldLastMatchWins(t *testing.T) {
	fields := map[string][]byte{
		"a.flac": []byte("first"),
		"b.flac": []byte("second"),
	}
	canonicalizeField(fields, "flac")
	// Sorted visit order makes b.flac the final writer.
	if string(fields["flac"]) != "second" {
		t.Fatalf("got %q, want the lexicographically last match", fields["flac"])
	}
	if len(fields) != 1 {
		t.Fatalf("matched keys should be consumed: %v", fields)
	}
}

func TestDecodeTextShapes(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 0))

	got, err := decodeText([]byte(`"hello"`), rng)
	if err != nil || got != "hello" {
		t.Fatalf("bare string: %q, %v", got, err)
	}

	got, err = decodeText([]byte(`["only"]`), rng)
	if err != nil || got != "only" {
		t.Fatalf("single-element list: %q, %v", got, err)
	}

	got, err = decodeText([]byte(`["a", "b"]`), rng)
	if err != nil || (got != "a" && got != "b") {
		t.Fatalf("multi-element list: %q, %v", got, err)
	}

	got, err = decodeText([]byte(`{"text": "t"}`), rng)
	if err != nil || got != "t" {
		t.Fatalf("object text member: %q, %v", got, err)
	}

	got, err = decodeText([]byte(`{"caption": ["c"]}`), rng)
	if err != nil || got != "c" {
		t.Fatalf("object caption list: %q, %v", got, err)
	}
}

func TestDecodeTextErrors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 0))
	for _, raw := range []string{`not json`, `[]`, `{"other": 1}`, `42`, `[1, 2]`} {
		if _, err := decodeText([]byte(raw), rng); err == nil {
			t.Fatalf("input %q should fail", raw)
		}
	}
}

func TestPreprocessorSample(t *testing.T) {
	cfg := Config{
		AudioKey:   "wav",
		TextKey:    "json",
		MaxSamples: 8,
		Mono:       true,
		Tokenizer: func(text string) []int64 {
			return []int64{int64(len(text))}
		},
	}
	pp := newPreprocessor(cfg, rand.New(rand.NewPCG(1, 0)))

	rec := webdataset.RawRecord{
		URL: "shard-000000.tar",
		Key: "000123",
		Fields: map[string][]byte{
			"000123.wav": wavBytes(t, []int{0, 8192, -8192}, 1, 16000),
			"json":       []byte(`{"text": "a caption"}`),
		},
	}
	s, err := pp.Sample(rec)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if len(s.Waveform) != 8 {
		t.Fatalf("waveform length %d, want 8", len(s.Waveform))
	}
	if s.Text != "a caption" {
		t.Fatalf("text %q", s.Text)
	}
	if len(s.Tokens) != 1 || s.Tokens[0] != int64(len("a caption")) {
		t.Fatalf("tokens %v", s.Tokens)
	}
	if s.AudioName != "000123.wav" || s.TextName != "000123.json" {
		t.Fatalf("names %q / %q", s.AudioName, s.TextName)
	}
	if s.Channels != 1 {
		t.Fatalf("channels %d, want 1", s.Channels)
	}
}

func TestPreprocessorMissingField(t *testing.T) {
	cfg := Config{AudioKey: "wav", TextKey: "json", MaxSamples: 8}
	pp := newPreprocessor(cfg, rand.New(rand.NewPCG(1, 0)))

	_, err := pp.Sample(webdataset.RawRecord{
		Key:    "x",
		Fields: map[string][]byte{"json": []byte(`"text"`)},
	})
	if err == nil || !strings.Contains(err.Error(), "wav") {
		t.Fatalf("expect missing audio field error, got %v", err)
	}
}
