package webdataset

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync/atomic"
)

// Shard identifies one archive file, by local path or URL. Immutable once
// enumerated; consumed once per epoch by exactly one worker.
type Shard struct {
	URL string
}

// RawRecord is one logical record extracted from a shard: the archive
// entries sharing a key prefix, mapped field-extension → bytes. It exists
// only transiently between the reader and the preprocessor.
type RawRecord struct {
	URL    string
	Key    string
	Fields map[string][]byte
}

// ErrorHandler decides what happens on a recoverable read failure. A true
// return continues with the next record or shard.
type ErrorHandler func(error) bool

// LogAndContinue returns the default handler: warn once and keep going.
// A single corrupt shard must not abort a multi-day job.
func LogAndContinue(logger *slog.Logger) ErrorHandler {
	return func(err error) bool {
		logger.Warn("handling webdataset error, ignoring", slog.String("error", err.Error()))
		return true
	}
}

// ReaderStats counts the outcomes of record extraction. Skipped records
// are permanently dropped; there is no retry at any layer.
type ReaderStats struct {
	Records atomic.Int64
	Skipped atomic.Int64
}

// ReaderConfig configures a RecordSource.
type ReaderConfig struct {
	Logger  *slog.Logger
	Handler ErrorHandler // defaults to LogAndContinue(Logger)
	Client  *http.Client // for http(s) shards, defaults to http.DefaultClient
}

// RecordSource reads shards sequentially and yields RawRecords. Decode
// failures for individual entries or whole shards are routed through the
// error handler and counted, never surfaced to the consumer.
type RecordSource struct {
	shards  Source[Shard]
	cfg     ReaderConfig
	stats   *ReaderStats
	current io.Closer
	tr      *tar.Reader
	url     string
	pending *RawRecord
	carry   *tarEntry
	closed  bool
}

type tarEntry struct {
	key   string
	field string
	data  []byte
}

// OpenRecords builds the archive-reading stage over a shard stream.
func OpenRecords(shards Source[Shard], cfg ReaderConfig) *RecordSource {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		cfg.Handler = LogAndContinue(cfg.Logger)
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &RecordSource{shards: shards, cfg: cfg, stats: new(ReaderStats)}
}

// Stats exposes the running record/skip counters.
func (r *RecordSource) Stats() *ReaderStats { return r.stats }

// Next yields the next complete record, opening subsequent shards as the
// current one is exhausted.
func (r *RecordSource) Next(ctx context.Context) (RawRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return RawRecord{}, err
		}
		if r.closed {
			return RawRecord{}, io.EOF
		}
		if r.tr == nil {
			if done, err := r.openNextShard(ctx); done || err != nil {
				if err == nil {
					err = io.EOF
				}
				return RawRecord{}, err
			}
			continue
		}
		if r.carry != nil {
			r.addEntry(r.carry)
			r.carry = nil
		}

		entry, err := r.nextEntry()
		if err == io.EOF {
			r.closeShard()
			if rec := r.flushPending(); rec != nil {
				return *rec, nil
			}
			continue
		}
		if err != nil {
			// Corrupt tar stream: drop the rest of this shard.
			r.skip(&RecordDecodeError{URL: r.url, Err: err})
			r.closeShard()
			if rec := r.flushPending(); rec != nil {
				return *rec, nil
			}
			continue
		}
		if entry == nil {
			continue // uninteresting entry
		}

		if r.pending != nil && r.pending.Key != entry.key {
			rec := r.flushPending()
			r.carry = entry
			return *rec, nil
		}
		r.addEntry(entry)
	}
}

// Close releases the currently open shard. Safe to call repeatedly and
// required on every exit path, including consumer-side cancellation.
func (r *RecordSource) Close() error {
	r.closed = true
	r.closeShard()
	return nil
}

func (r *RecordSource) openNextShard(ctx context.Context) (done bool, err error) {
	shard, err := r.shards.Next(ctx)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	var rc io.ReadCloser
	if strings.HasPrefix(shard.URL, "http://") || strings.HasPrefix(shard.URL, "https://") {
		rc, err = r.openRemote(ctx, shard.URL)
	} else {
		rc, err = os.Open(shard.URL)
	}
	if err != nil {
		// Unreadable shard: count it and move on.
		r.skip(&RecordDecodeError{URL: shard.URL, Err: err})
		return false, nil
	}

	r.current = rc
	r.tr = tar.NewReader(rc)
	r.url = shard.URL
	return false, nil
}

func (r *RecordSource) openRemote(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching shard: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// nextEntry reads one tar entry and splits its name into (record key,
// field extension). Returns (nil, nil) for entries that do not belong to
// any record: directories, hidden files, extension-less names.
func (r *RecordSource) nextEntry() (*tarEntry, error) {
	hdr, err := r.tr.Next()
	if err != nil {
		return nil, err
	}
	if hdr.Typeflag != tar.TypeReg {
		return nil, nil
	}
	name := strings.TrimPrefix(hdr.Name, "./")
	base := path.Base(name)
	dot := strings.IndexByte(base, '.')
	if dot <= 0 || strings.HasPrefix(base, ".") {
		return nil, nil
	}

	data, err := io.ReadAll(r.tr)
	if err != nil {
		key := path.Join(path.Dir(name), base[:dot])
		r.skip(&RecordDecodeError{URL: r.url, Key: key, Err: err})
		return nil, nil
	}

	return &tarEntry{
		key:   path.Join(path.Dir(name), base[:dot]),
		field: strings.ToLower(base[dot+1:]),
		data:  data,
	}, nil
}

func (r *RecordSource) addEntry(e *tarEntry) {
	if r.pending == nil {
		r.pending = &RawRecord{
			URL:    r.url,
			Key:    e.key,
			Fields: make(map[string][]byte),
		}
	}
	r.pending.Fields[e.field] = e.data
}

func (r *RecordSource) flushPending() *RawRecord {
	rec := r.pending
	r.pending = nil
	if rec != nil {
		r.stats.Records.Add(1)
	}
	return rec
}

func (r *RecordSource) closeShard() {
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
	r.tr = nil
}

func (r *RecordSource) skip(err error) {
	r.stats.Skipped.Add(1)
	if !r.cfg.Handler(err) {
		// Handler asked to stop: treat the remaining stream as closed.
		r.closed = true
	}
}
