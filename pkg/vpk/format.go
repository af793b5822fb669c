package vpk

import (
	"encoding/binary"
	"io"
)

// VPK format constants
const (
	// Magic signature 0x55AA1234 in little-endian
	vpkMagic = 0x55AA1234

	// Supported directory format versions
	formatVersion1 = 1
	formatVersion2 = 2

	// Header sizes
	headerSizeV1 = 12
	headerSizeV2 = 28

	// DirIndexSentinel marks entries whose data is embedded in the
	// directory blob itself rather than in a numbered archive part.
	DirIndexSentinel = 0x7FFF

	// High bit of the archive index field. Set by some packing tools as a
	// patch marker; the part lookup path masks it off, the metadata path
	// refuses to guess.
	archiveIndexFlagBit = 0x8000

	// Terminator closing every directory entry record
	entryTerminator = 0xFFFF
)

// baseHeader is the VPK v1 directory header (12 bytes).
type baseHeader struct {
	Magic    uint32 // 0x55AA1234
	Version  uint32 // 1 or 2
	TreeSize uint32 // size of the directory tree in bytes
}

// extendedHeader contains the v2 section sizes (16 bytes).
type extendedHeader struct {
	FileDataSectionSize   uint32
	ArchiveMD5SectionSize uint32
	OtherMD5SectionSize   uint32
	SignatureSectionSize  uint32
}

// dirHeader combines v1 and v2 headers.
type dirHeader struct {
	baseHeader
	extendedHeader
}

// headerLen returns the on-disk size of the header for this version.
func (h *dirHeader) headerLen() uint32 {
	if h.Version >= formatVersion2 {
		return headerSizeV2
	}
	return headerSizeV1
}

// entryRecord is the fixed-size portion of a directory tree entry (18 bytes).
// PreloadBytes bytes of inline data follow the record in the stream.
type entryRecord struct {
	CRC          uint32 // CRC32 of the entry data
	PreloadBytes uint16 // bytes of data inlined after this record
	ArchiveIndex uint16 // containing part, or DirIndexSentinel
	EntryOffset  uint32 // offset within the part (or the dir data section)
	EntryLength  uint32 // length within the part, excluding preload
	Terminator   uint16 // always 0xFFFF
}

// readRecord decodes one fixed-size entry record.
func readRecord(r io.Reader, rec *entryRecord) error {
	return binary.Read(r, binary.LittleEndian, rec)
}

// readFull fills buf or fails.
func readFull(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

// readCString reads a null-terminated string.
func readCString(r io.ByteReader) (string, error) {
	var sb []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(sb), nil
		}
		sb = append(sb, b)
	}
}

// readDirHeader reads and version-dispatches the directory header.
func readDirHeader(r io.Reader) (*dirHeader, error) {
	h := &dirHeader{}

	if err := binary.Read(r, binary.LittleEndian, &h.baseHeader); err != nil {
		return nil, err
	}

	if h.Version >= formatVersion2 {
		if err := binary.Read(r, binary.LittleEndian, &h.extendedHeader); err != nil {
			return nil, err
		}
	}

	return h, nil
}
