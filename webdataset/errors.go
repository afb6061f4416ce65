package webdataset

import "fmt"

// RecordDecodeError marks a failure confined to a single archive record:
// a malformed tar entry, an audio decode failure, or unparsable text.
// Records failing this way are logged and dropped, never propagated to
// the pipeline consumer.
type RecordDecodeError struct {
	URL string // shard the record came from
	Key string // record identity, may be empty when grouping failed
	Err error
}

func (e *RecordDecodeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("decoding record in %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("decoding record %s in %s: %v", e.Key, e.URL, e.Err)
}

func (e *RecordDecodeError) Unwrap() error { return e.Err }

// ManifestFetchError reports that a remote size manifest could not be
// retrieved. Fatal for the training split, tolerated for evaluation.
type ManifestFetchError struct {
	URL string
	Err error
}

func (e *ManifestFetchError) Error() string {
	return fmt.Sprintf("fetching manifest %s: %v", e.URL, e.Err)
}

func (e *ManifestFetchError) Unwrap() error { return e.Err }
