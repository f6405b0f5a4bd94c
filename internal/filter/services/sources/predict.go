package sources

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haukened/simplefilter/internal/filter/domain"
)

// Reference shapes, tested in this order.
var (
	// http(s) URL whose last segment is name.ext
	remoteRef = regexp.MustCompile(`(?i)^https?://([^/]+/)+[^\\?/*|<>:"]+\.[a-z]+$`)
	// X:\dir\name.ext
	windowsRef = regexp.MustCompile(`(?i)^\w:\\([^\\]+\\)*[^\\?/*|<>:"]+\.[a-z]+$`)
	// /dir/name.ext
	posixRef = regexp.MustCompile(`(?i)^/([^/]+/)*[^\\?/*|<>:"]+\.[a-z]+$`)
	// name.ext@alias
	aliasRef = regexp.MustCompile(`(?i)^([^\\?/*|<>:"]+\.[a-z]+)@(\w+)$`)
)

// Resolution is where a list reference points.
type Resolution struct {
	Kind   domain.ReferenceKind
	URL    string // remote only
	Path   string // file the rules are read from; the cache file for remote lists
	NoEdit bool   // true for remote lists, whose file is overwritten by downloads
}

// Predict classifies ref and resolves the file it refers to.
//
// Rules:
//   - an empty reference resolves to ReferenceNone without error
//   - remote lists are cached as <cacheDir>/<last URL segment>
//   - an alias must name a configured folder; the lookup is case-insensitive
//   - anything else wraps domain.ErrInvalidListReference
func Predict(ref, cacheDir string, folders map[string]string) (Resolution, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return Resolution{Kind: domain.ReferenceNone}, nil

	case remoteRef.MatchString(ref):
		name := ref[strings.LastIndexByte(ref, '/')+1:]
		return Resolution{
			Kind:   domain.ReferenceRemote,
			URL:    ref,
			Path:   filepath.Join(cacheDir, name),
			NoEdit: true,
		}, nil

	case windowsRef.MatchString(ref), posixRef.MatchString(ref):
		return Resolution{Kind: domain.ReferenceLocal, Path: ref}, nil
	}

	if m := aliasRef.FindStringSubmatch(ref); m != nil {
		if dir, ok := lookupFolder(folders, m[2]); ok {
			return Resolution{Kind: domain.ReferenceAlias, Path: filepath.Join(dir, m[1])}, nil
		}
		return Resolution{}, fmt.Errorf("%w: unknown folder alias %q in %q", domain.ErrInvalidListReference, m[2], ref)
	}
	return Resolution{}, fmt.Errorf("%w: %q", domain.ErrInvalidListReference, ref)
}

func lookupFolder(folders map[string]string, alias string) (string, bool) {
	if dir, ok := folders[alias]; ok {
		return dir, true
	}
	for k, dir := range folders {
		if strings.EqualFold(k, alias) {
			return dir, true
		}
	}
	return "", false
}
