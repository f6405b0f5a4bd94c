package sources

import (
	"context"
	"time"

	"github.com/haukened/simplefilter/internal/filter/domain"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist/parsers"
)

// FileSystem is the local file access the manager needs. Missing files must
// be reported with an error wrapping domain.ErrFileNotFound.
type FileSystem interface {
	Stat(path string) (domain.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	MkdirAll(dir string) error
	Touch(path string, t time.Time) error
}

// Downloader fetches a remote list into dest, replacing it only on success.
type Downloader interface {
	Download(ctx context.Context, rawURL, dest string, prev domain.FetchState) (domain.DownloadResult, error)
}

// StateStore persists fetch validators and failure counts per URL.
type StateStore interface {
	Get(url string) (domain.FetchState, bool, error)
	Put(st domain.FetchState) error
	Delete(url string) error
}

// RuleStore receives compiled lists per profile slot.
type RuleStore interface {
	Load(slot int, lines []parsers.Line, source string) (rulelist.LoadResult, error)
	Clear(slot int) error
}

// FileWatcher tracks the file of editable profiles. An empty path stops
// tracking the slot.
type FileWatcher interface {
	Set(slot int, path string) error
}
