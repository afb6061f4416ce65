package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAudioTable(t *testing.T, dir string, rows int) string {
	t.Helper()
	audioRaw := wavBytes(t, []int{0, 4096, -4096}, 1, 16000)

	var sb strings.Builder
	sb.WriteString("audio,caption\n")
	for i := 0; i < rows; i++ {
		clip := filepath.Join(dir, fmt.Sprintf("clip-%d.wav", i))
		if err := os.WriteFile(clip, audioRaw, 0644); err != nil {
			t.Fatalf("writing clip: %v", err)
		}
		sb.WriteString(fmt.Sprintf("%s,caption %d\n", clip, i))
	}

	csvPath := filepath.Join(dir, "table.csv")
	if err := os.WriteFile(csvPath, []byte(sb.String()), 0644); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
	return csvPath
}

func TestTabularTrainDropsPartialBatch(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeAudioTable(t, dir, 5)

	cfg := Config{
		TrainShards: []string{csvPath},
		BatchSize:   2,
		Separator:   ',',
		AudioKey:    "wav",
		MaxSamples:  10,
		Mono:        true,
		Seed:        5,
		Logger:      testLogger(),
	}
	data, err := Get(cfg)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data.Train.NumBatches() != 2 || data.Train.NumSamples() != 5 {
		t.Fatalf("got batches=%d samples=%d", data.Train.NumBatches(), data.Train.NumSamples())
	}

	count := 0
	for b, err := range data.Train.Batches(context.Background()) {
		if err != nil {
			t.Fatalf("batch error: %v", err)
		}
		if b.Len() != 2 {
			t.Fatalf("training batch has %d samples, want 2", b.Len())
		}
		if len(b.Waveforms[0]) != 10 {
			t.Fatalf("waveform length %d, want 10", len(b.Waveforms[0]))
		}
		count++
	}
	if count != 2 {
		t.Fatalf("emitted %d batches, want 2", count)
	}
}

func TestTabularEvalKeepsPartialBatch(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeAudioTable(t, dir, 5)

	cfg := Config{
		ValShards:  []string{csvPath},
		BatchSize:  2,
		Separator:  ',',
		AudioKey:   "wav",
		MaxSamples: 10,
		Mono:       true,
		Logger:     testLogger(),
	}
	data, err := Get(cfg)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if data.Val.NumBatches() != 3 {
		t.Fatalf("batches %d, want 3", data.Val.NumBatches())
	}

	var batches, samples int
	var lastLen int
	for b, err := range data.Val.Batches(context.Background()) {
		if err != nil {
			t.Fatalf("batch error: %v", err)
		}
		batches++
		samples += b.Len()
		lastLen = b.Len()
	}
	if batches != 3 || samples != 5 {
		t.Fatalf("got batches=%d samples=%d", batches, samples)
	}
	if lastLen != 1 {
		t.Fatalf("final batch has %d samples, want the partial 1", lastLen)
	}
}

func TestTabularEpochPermutationVaries(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeAudioTable(t, dir, 8)

	cfg := Config{
		TrainShards: []string{csvPath},
		BatchSize:   8,
		Separator:   ',',
		AudioKey:    "wav",
		MaxSamples:  10,
		Mono:        true,
		Seed:        5,
		Logger:      testLogger(),
	}
	data, err := Get(cfg)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	order := func() []string {
		var keys []string
		for b, err := range data.Train.Batches(context.Background()) {
			if err != nil {
				t.Fatalf("batch error: %v", err)
			}
			keys = append(keys, b.Keys...)
		}
		return keys
	}
	first, second := order(), order()
	if len(first) != 8 || len(second) != 8 {
		t.Fatalf("epochs saw %d/%d samples, want 8", len(first), len(second))
	}
	same := true
	for i := range first {
		if first[i] != second[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("consecutive epochs visited rows in the same order")
	}
}

func TestTabularMissingColumn(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "table.csv")
	if err := os.WriteFile(csvPath, []byte("foo,bar\nx,y\n"), 0644); err != nil {
		t.Fatalf("writing csv: %v", err)
	}

	cfg := Config{
		TrainShards: []string{csvPath},
		Separator:   ',',
		Logger:      testLogger(),
	}
	if _, err := Get(cfg); err == nil {
		t.Fatalf("expect missing column error")
	}
}
