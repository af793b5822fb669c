package vpk

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Resolver maps target logical paths to the set of archive parts that must
// be downloaded before the targets can be extracted.
type Resolver struct {
	dir      *Directory
	pattern  string // part filename pattern, e.g. pak01_%03d.vpk
	openPart PartOpener
	logger   zerolog.Logger
}

// NewResolver builds a resolver over a parsed directory. openPart is only
// used by the index-recovery fallback and may be a local filesystem reader;
// it is never asked to produce data, only to fail informatively.
func NewResolver(dir *Directory, pattern string, openPart PartOpener, logger zerolog.Logger) *Resolver {
	return &Resolver{
		dir:      dir,
		pattern:  pattern,
		openPart: openPart,
		logger:   logger,
	}
}

// RequiredParts returns the sorted, deduplicated part indices needed for the
// given targets. Entries embedded in the directory blob (sentinel index)
// need no part and are excluded. A target with no matching directory entry
// is logged as a warning and skipped; it never aborts resolution of the
// others.
func (r *Resolver) RequiredParts(targets []string) []uint16 {
	required := make(map[uint16]struct{})

	for _, target := range targets {
		entries := r.dir.EntriesWithPrefix(target)
		if len(entries) == 0 {
			r.logger.Warn().Str("target", target).Msg("target not present in VPK directory")
			continue
		}
		for _, e := range entries {
			index, ok := r.partIndexFor(e)
			if !ok {
				r.logger.Warn().Str("path", e.Path).Msg("could not determine archive index")
				continue
			}
			if index == DirIndexSentinel {
				r.logger.Debug().Str("path", e.Path).Msg("entry embedded in directory, no part needed")
				continue
			}
			required[index] = struct{}{}
		}
	}

	result := make([]uint16, 0, len(required))
	for index := range required {
		result = append(result, index)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// partIndexFor resolves the archive index for one entry. The decoded
// metadata field is authoritative whenever it is trustworthy; otherwise the
// format-coupled recovery path takes over.
func (r *Resolver) partIndexFor(e *Entry) (uint16, bool) {
	if index, err := e.PartIndex(); err == nil {
		return index, true
	}
	return r.recoverPartIndex(e)
}

// recoverPartIndex is a last-resort, format-coupled fallback: it provokes
// the part lookup machinery into failing and parses the part index out of
// the error text, which names the missing part file. Kept isolated on
// purpose; the direct metadata path in reader.go is always preferred.
func (r *Resolver) recoverPartIndex(e *Entry) (uint16, bool) {
	_, err := r.dir.ReadEntry(e, r.openPart)
	if err == nil {
		// The lookup path satisfied the entry locally (embedded data, or a
		// part already on disk), so no download is needed.
		return DirIndexSentinel, true
	}
	index, ok := partIndexFromError(err, r.pattern)
	if ok {
		r.logger.Debug().
			Str("path", e.Path).
			Uint16("index", index).
			Msg("recovered archive index from lookup error")
	}
	return index, ok
}

// partIndexFromError extracts a part index from an error whose text names a
// part file matching pattern, e.g. "pak01_005.vpk" for pattern
// "pak01_%03d.vpk". Narrow contract: pattern -> integer, nothing else.
func partIndexFromError(err error, pattern string) (uint16, bool) {
	if err == nil {
		return 0, false
	}
	re, ok := partNameRegexp(pattern)
	if !ok {
		return 0, false
	}
	m := re.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	n, convErr := strconv.ParseUint(m[1], 10, 16)
	if convErr != nil {
		return 0, false
	}
	return uint16(n), true
}

// partNameRegexp turns a %03d filename pattern into a capture regexp.
func partNameRegexp(pattern string) (*regexp.Regexp, bool) {
	prefix, suffix, found := strings.Cut(pattern, "%03d")
	if !found {
		return nil, false
	}
	re, err := regexp.Compile(regexp.QuoteMeta(prefix) + `(\d{3})` + regexp.QuoteMeta(suffix))
	if err != nil {
		return nil, false
	}
	return re, true
}
