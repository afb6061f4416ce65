package webdataset

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Manifest maps shard basenames to their sample counts. It is loaded once
// per run and read-only thereafter.
type Manifest map[string]int64

// SizeInfo is the result of resolving the size of a shard set.
type SizeInfo struct {
	Total     int64
	NumShards int
	PerShard  map[string]int64 // nil when only an aggregate count is known
	Known     bool             // false when no size source exists
}

// ResolveOptions control where size information is looked up.
type ResolveOptions struct {
	// ManifestPath overrides the default sizes.json location next to the
	// shards. May be a local path or an http(s) URL.
	ManifestPath string

	// Remote marks the shard paths as http(s) URLs. The manifest is then
	// fetched over HTTP and cached on disk.
	Remote bool

	// CacheDir is where fetched manifests are cached. Defaults to the
	// DATASET_CACHE_DIR environment variable, then os.TempDir.
	CacheDir string
}

const (
	sizesFileName = "sizes.json"
	lenFileName   = "__len__"
)

// Resolve determines the total sample count and shard count for one or
// more shard patterns. Each pattern is brace-expanded and resolved
// independently; totals are summed across patterns.
//
// Per pattern, the lookup order is: sizes.json (or the explicit manifest)
// covering every expanded shard, then the directory-level __len__ file
// holding a single integer. If neither exists the result has Known=false
// and the caller decides whether that is fatal.
func Resolve(patterns []string, opts ResolveOptions) (SizeInfo, error) {
	if len(patterns) == 0 {
		return SizeInfo{}, fmt.Errorf("resolving dataset size: no shard patterns")
	}
	var (
		info   SizeInfo
		perAll = make(map[string]int64)
		allPer = true
	)
	info.Known = true
	for _, pattern := range patterns {
		one, err := resolveOne(pattern, opts)
		if err != nil {
			return SizeInfo{}, err
		}
		info.NumShards += one.NumShards
		info.Total += one.Total
		// A partially known size is reported as unknown: the training
		// split needs a trustworthy total, not a lower bound.
		info.Known = info.Known && one.Known
		if one.PerShard == nil {
			allPer = false
		} else {
			for k, v := range one.PerShard {
				perAll[k] = v
			}
		}
	}
	if !info.Known {
		info.Total = 0
		allPer = false
	}
	if allPer {
		info.PerShard = perAll
	}
	return info, nil
}

func resolveOne(pattern string, opts ResolveOptions) (SizeInfo, error) {
	shards, err := BraceExpand(pattern)
	if err != nil {
		return SizeInfo{}, err
	}
	info := SizeInfo{NumShards: len(shards)}

	m, err := loadManifestFor(pattern, opts)
	if err != nil {
		return SizeInfo{}, err
	}
	if m != nil {
		per := make(map[string]int64, len(shards))
		covered := true
		for _, s := range shards {
			n, ok := m[path.Base(s)]
			if !ok {
				covered = false
				break
			}
			per[path.Base(s)] = n
			info.Total += n
		}
		if covered {
			info.PerShard = per
			info.Known = true
			return info, nil
		}
		info.Total = 0
	}

	// Directory-level total. Parsed with strconv only; the file contents
	// are data, not code.
	if !isRemote(pattern, opts) {
		lenPath := filepath.Join(filepath.Dir(pattern), lenFileName)
		if raw, err := os.ReadFile(lenPath); err == nil {
			n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
			if err != nil {
				return SizeInfo{}, fmt.Errorf("parsing %s: %w", lenPath, err)
			}
			info.Total = n
			info.Known = true
			return info, nil
		}
	}

	return info, nil
}

// loadManifestFor returns the manifest covering pattern, or nil when none
// exists locally. Remote manifests that cannot be fetched surface a
// ManifestFetchError for the caller to classify.
func loadManifestFor(pattern string, opts ResolveOptions) (Manifest, error) {
	loc := opts.ManifestPath
	if loc == "" {
		if isRemote(pattern, opts) {
			loc = urlDir(pattern) + "/" + sizesFileName
		} else {
			loc = filepath.Join(filepath.Dir(pattern), sizesFileName)
		}
	}
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return fetchManifest(loc, cacheDir(opts))
	}
	raw, err := os.ReadFile(loc)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", loc, err)
	}
	return parseManifest(raw, loc)
}

func parseManifest(raw []byte, loc string) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", loc, err)
	}
	return m, nil
}

// fetchManifest downloads a sizes manifest, caching it on disk so a run
// fetches it at most once.
func fetchManifest(url, cache string) (Manifest, error) {
	cacheFile := filepath.Join(cache, "clap-manifests", sanitize(url))
	if raw, err := os.ReadFile(cacheFile); err == nil {
		return parseManifest(raw, url)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, &ManifestFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ManifestFetchError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ManifestFetchError{URL: url, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(cacheFile), 0755); err == nil {
		_ = os.WriteFile(cacheFile, raw, 0644)
	}

	return parseManifest(raw, url)
}

// SampleProp draws an unweighted subset of ⌊N·p⌋ shards without
// replacement from the manifest's shard set. The draw is seeded and fixed
// for the run; it is never re-drawn per epoch.
//
// Returns the selected shard basenames, their aggregate size, and the
// per-shard sizes of the selection.
func SampleProp(m Manifest, p float64, seed uint64) ([]string, int64, map[string]int64, error) {
	if p <= 0 || p > 1 {
		return nil, 0, nil, fmt.Errorf("proportion %v outside (0, 1]", p)
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	k := int(float64(len(names)) * p)
	if k == 0 {
		return nil, 0, nil, fmt.Errorf("proportion %v selects no shards from %d", p, len(names))
	}

	idxs := make([]int, k)
	sampleuv.WithoutReplacement(idxs, len(names), rand.NewSource(seed))
	sort.Ints(idxs)

	var (
		selected = make([]string, 0, k)
		sizes    = make(map[string]int64, k)
		total    int64
	)
	for _, i := range idxs {
		name := names[i]
		selected = append(selected, name)
		sizes[name] = m[name]
		total += m[name]
	}
	return selected, total, sizes, nil
}

func isRemote(pattern string, opts ResolveOptions) bool {
	return opts.Remote ||
		strings.HasPrefix(pattern, "http://") ||
		strings.HasPrefix(pattern, "https://")
}

func urlDir(url string) string {
	if i := strings.LastIndexByte(url, '/'); i > 0 {
		return url[:i]
	}
	return url
}

func sanitize(url string) string {
	r := strings.NewReplacer("://", "_", "/", "_", "?", "_", "&", "_")
	return r.Replace(url)
}

func cacheDir(opts ResolveOptions) string {
	if opts.CacheDir != "" {
		return opts.CacheDir
	}
	if dir := os.Getenv("DATASET_CACHE_DIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}
