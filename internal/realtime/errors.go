package realtime

import "fmt"

// FeedFetchError reports a failed request to the feed endpoint: a network
// error, a non-2xx status or an oversized body.
type FeedFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FeedFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching feed %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching feed %s: %v", e.URL, e.Err)
}

func (e *FeedFetchError) Unwrap() error {
	return e.Err
}

// FeedDecodeError reports a payload that is not a valid feed message.
type FeedDecodeError struct {
	Size int
	Err  error
}

func (e *FeedDecodeError) Error() string {
	return fmt.Sprintf("decoding feed (%d bytes): %v", e.Size, e.Err)
}

func (e *FeedDecodeError) Unwrap() error {
	return e.Err
}
