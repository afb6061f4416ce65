package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/Ngomntu1q/CLAP/audio"
	"github.com/Ngomntu1q/CLAP/webdataset"
)

// preprocessor turns one RawRecord into a Sample. Any failure propagates
// to the caller, which routes it through the record-level skip handler;
// preprocessing never aborts a shard.
type preprocessor struct {
	cfg Config
	rng *rand.Rand
}

func newPreprocessor(cfg Config, rng *rand.Rand) *preprocessor {
	return &preprocessor{cfg: cfg, rng: rng}
}

func (p *preprocessor) Sample(rec webdataset.RawRecord) (*Sample, error) {
	canonicalizeField(rec.Fields, p.cfg.AudioKey)
	canonicalizeField(rec.Fields, p.cfg.TextKey)

	audioRaw, ok := rec.Fields[p.cfg.AudioKey]
	if !ok {
		return nil, fmt.Errorf("record has no %q field", p.cfg.AudioKey)
	}
	textRaw, ok := rec.Fields[p.cfg.TextKey]
	if !ok {
		return nil, fmt.Errorf("record has no %q field", p.cfg.TextKey)
	}

	pcm, err := audio.Decode(audioRaw)
	if err != nil {
		return nil, err
	}
	pcm, err = audio.Resample(pcm, p.cfg.SampleRate, p.cfg.Resample)
	if err != nil {
		return nil, err
	}
	pcm = audio.FitLength(pcm, p.cfg.MaxSamples, p.rng)
	if p.cfg.Mono {
		pcm = audio.ToMono(pcm)
	}

	text, err := decodeText(textRaw, p.rng)
	if err != nil {
		return nil, err
	}

	s := &Sample{
		URL:       rec.URL,
		Key:       rec.Key,
		Waveform:  pcm.Samples,
		Channels:  pcm.Channels,
		Rate:      pcm.Rate,
		Text:      text,
		AudioName: rec.Key + "." + p.cfg.AudioKey,
		TextName:  rec.Key + "." + p.cfg.TextKey,
	}
	if p.cfg.Tokenizer != nil {
		s.Tokens = p.cfg.Tokenizer(text)
	}
	return s, nil
}

// canonicalizeField renames any record field whose key contains canon as
// a substring without being an exact match (archive entries named like
// "000123.flac" when the canonical key is "flac"). Fields are visited in
// sorted order so the last-match-wins outcome is deterministic.
func canonicalizeField(fields map[string][]byte, canon string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != canon && strings.Contains(k, canon) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields[canon] = fields[k]
		delete(fields, k)
	}
}

// decodeText parses the text field as JSON. Accepted shapes: a bare
// string, a non-empty array of strings (one picked uniformly at random
// when there are several; reproducibility of this pick within an epoch is
// not required), or an object with a "text" or "caption" member of either
// shape.
func decodeText(raw []byte, rng *rand.Rand) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("parsing text json: %w", err)
	}
	return textFromValue(v, rng)
}

func textFromValue(v any, rng *rand.Rand) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []any:
		if len(t) == 0 {
			return "", fmt.Errorf("text json: empty list")
		}
		pick := t[0]
		if len(t) > 1 {
			pick = t[rng.IntN(len(t))]
		}
		s, ok := pick.(string)
		if !ok {
			return "", fmt.Errorf("text json: list element is %T, not string", pick)
		}
		return s, nil
	case map[string]any:
		for _, key := range []string{"text", "caption"} {
			if inner, ok := t[key]; ok {
				return textFromValue(inner, rng)
			}
		}
		return "", fmt.Errorf("text json: object has no text or caption member")
	default:
		return "", fmt.Errorf("text json: unsupported shape %T", v)
	}
}
