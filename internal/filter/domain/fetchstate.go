package domain

import "time"

// FetchState is what is remembered about a remote list between downloads.
// ETag and LastModified come from the last successful response and are sent
// back as validators on the next request.
type FetchState struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	LastSuccess  time.Time `json:"last_success,omitzero"`
	LastFailure  time.Time `json:"last_failure,omitzero"`
	Failures     int       `json:"failures,omitempty"` // consecutive failed refreshes
	Size         int64     `json:"size,omitempty"`
}

// DownloadResult describes a completed download of a remote list.
type DownloadResult struct {
	// NotModified is true when the server answered 304 and the cache file was
	// left untouched.
	NotModified  bool
	ETag         string
	LastModified string
	Size         int64
}

// FileInfo is the subset of file metadata the source manager uses.
type FileInfo struct {
	ModTime time.Time
	Size    int64
}
