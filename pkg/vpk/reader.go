package vpk

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrFormat indicates that a blob does not conform to the VPK directory
// layout. It wraps the specific violation.
var ErrFormat = errors.New("invalid VPK directory")

// Entry describes one logical file in the directory tree.
type Entry struct {
	Path         string // forward-slash logical path, e.g. resource/csgo_english.txt
	CRC          uint32
	Preload      []byte // inline data stored in the directory itself
	ArchiveIndex uint16 // raw index field as decoded
	Offset       uint32
	Length       uint32
}

// PartIndex returns the archive part index for the entry, or an error when
// the decoded field cannot be trusted (patch-flagged records). Callers that
// need the index anyway go through Directory.ReadEntry, which applies the
// flag mask on the part lookup path.
func (e *Entry) PartIndex() (uint16, error) {
	if e.ArchiveIndex&archiveIndexFlagBit != 0 {
		return 0, fmt.Errorf("entry %s: archive index 0x%04X carries flag bits", e.Path, e.ArchiveIndex)
	}
	return e.ArchiveIndex, nil
}

// Embedded reports whether the entry data lives inside the directory blob.
func (e *Entry) Embedded() bool {
	return e.ArchiveIndex&^archiveIndexFlagBit == DirIndexSentinel
}

// PartOpener returns the full contents of the numbered archive part.
type PartOpener func(index uint16) ([]byte, error)

// Directory is the parsed, read-only representation of a VPK directory blob.
type Directory struct {
	Version uint32

	raw        []byte // the full directory blob, kept for embedded entries
	dataOffset uint32 // start of the inline data section (header + tree)
	entries    map[string]*Entry
	paths      []string // sorted, for deterministic iteration
}

// Parse builds a Directory from a raw pak01_dir.vpk blob.
func Parse(raw []byte) (*Directory, error) {
	r := bytes.NewReader(raw)

	h, err := readDirHeader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrFormat, err)
	}
	if h.Magic != vpkMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08X", ErrFormat, h.Magic)
	}
	if h.Version != formatVersion1 && h.Version != formatVersion2 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, h.Version)
	}
	if uint64(h.headerLen())+uint64(h.TreeSize) > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: tree size %d exceeds blob", ErrFormat, h.TreeSize)
	}

	d := &Directory{
		Version:    h.Version,
		raw:        raw,
		dataOffset: h.headerLen() + h.TreeSize,
		entries:    make(map[string]*Entry),
	}

	if err := d.parseTree(r); err != nil {
		return nil, err
	}

	d.paths = make([]string, 0, len(d.entries))
	for p := range d.entries {
		d.paths = append(d.paths, p)
	}
	sort.Strings(d.paths)

	return d, nil
}

// parseTree walks the three-level extension/path/filename tree. Each level
// is a sequence of null-terminated strings closed by an empty string.
func (d *Directory) parseTree(r *bytes.Reader) error {
	for {
		ext, err := readCString(r)
		if err != nil {
			return fmt.Errorf("%w: truncated extension level: %v", ErrFormat, err)
		}
		if ext == "" {
			return nil
		}
		for {
			dir, err := readCString(r)
			if err != nil {
				return fmt.Errorf("%w: truncated path level: %v", ErrFormat, err)
			}
			if dir == "" {
				break
			}
			for {
				name, err := readCString(r)
				if err != nil {
					return fmt.Errorf("%w: truncated filename level: %v", ErrFormat, err)
				}
				if name == "" {
					break
				}
				if err := d.parseEntry(r, entryPath(dir, name, ext)); err != nil {
					return err
				}
			}
		}
	}
}

func (d *Directory) parseEntry(r *bytes.Reader, path string) error {
	var rec entryRecord
	if err := readRecord(r, &rec); err != nil {
		return fmt.Errorf("%w: truncated record for %s: %v", ErrFormat, path, err)
	}
	if rec.Terminator != entryTerminator {
		return fmt.Errorf("%w: bad terminator 0x%04X for %s", ErrFormat, rec.Terminator, path)
	}

	preload := make([]byte, rec.PreloadBytes)
	if _, err := readFull(r, preload); err != nil {
		return fmt.Errorf("%w: truncated preload for %s: %v", ErrFormat, path, err)
	}

	d.entries[path] = &Entry{
		Path:         path,
		CRC:          rec.CRC,
		Preload:      preload,
		ArchiveIndex: rec.ArchiveIndex,
		Offset:       rec.EntryOffset,
		Length:       rec.EntryLength,
	}
	return nil
}

// Len returns the number of entries in the directory.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Paths returns all entry paths in sorted order.
func (d *Directory) Paths() []string {
	return d.paths
}

// Get returns the entry with the exact logical path.
func (d *Directory) Get(path string) (*Entry, bool) {
	e, ok := d.entries[path]
	return e, ok
}

// EntriesWithPrefix returns all entries whose path starts with prefix, in
// sorted path order. Targets are configured by their logical path stem, so
// a lookup for resource/csgo_english.txt also matches nested variants.
func (d *Directory) EntriesWithPrefix(prefix string) []*Entry {
	var matches []*Entry
	i := sort.SearchStrings(d.paths, prefix)
	for ; i < len(d.paths) && strings.HasPrefix(d.paths[i], prefix); i++ {
		matches = append(matches, d.entries[d.paths[i]])
	}
	return matches
}

// ReadEntry assembles the full byte content of an entry: preload data first,
// then the remainder from either the directory's own data section (sentinel
// index) or the containing archive part supplied by open. The flag bit is
// masked off the raw index on this path.
func (d *Directory) ReadEntry(e *Entry, open PartOpener) ([]byte, error) {
	if e.Length == 0 {
		return append([]byte(nil), e.Preload...), nil
	}

	index := e.ArchiveIndex &^ archiveIndexFlagBit
	var source []byte
	if index == DirIndexSentinel {
		start := uint64(d.dataOffset) + uint64(e.Offset)
		end := start + uint64(e.Length)
		if end > uint64(len(d.raw)) {
			return nil, fmt.Errorf("%w: embedded data for %s out of range", ErrFormat, e.Path)
		}
		source = d.raw[start:end]
	} else {
		part, err := open(index)
		if err != nil {
			return nil, fmt.Errorf("read %s from part %d: %w", e.Path, index, err)
		}
		end := uint64(e.Offset) + uint64(e.Length)
		if end > uint64(len(part)) {
			return nil, fmt.Errorf("entry %s out of range in part %d (%d bytes)", e.Path, index, len(part))
		}
		source = part[e.Offset:end]
	}

	buf := make([]byte, 0, len(e.Preload)+int(e.Length))
	buf = append(buf, e.Preload...)
	return append(buf, source...), nil
}

// entryPath joins the tree levels into a logical path. A single space marks
// an empty level (root directory, or a file with no extension).
func entryPath(dir, name, ext string) string {
	full := name
	if dir != " " && dir != "" {
		full = dir + "/" + name
	}
	if ext != " " && ext != "" {
		full += "." + ext
	}
	return full
}
