package dataset

// Sample is the normalized unit flowing out of the preprocessor:
// fixed-length waveform, decoded and tokenized text, and the naming
// metadata derived from the record identity. Immutable once produced.
type Sample struct {
	URL string // shard the sample came from
	Key string // record identity within the shard

	// Waveform is frame-major interleaved float32, exactly
	// MaxSamples × Channels long.
	Waveform []float32
	Channels int
	Rate     int

	Text   string
	Tokens []int64

	AudioName string
	TextName  string
}
