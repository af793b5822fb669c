package fetch

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vantigo/csfiles/internal/config"
	"github.com/vantigo/csfiles/pkg/steam"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		AppID:              730,
		DepotID:            2347770,
		TargetPaths:        []string{"resource/csgo_english.txt", "resource/csgo_schinese.txt", "scripts/items/items_game.txt"},
		DirFilename:        "pak01_dir.vpk",
		ArchiveNamePattern: "pak01_%03d.vpk",
		StaticDir:          filepath.Join(base, "static"),
		TempDir:            filepath.Join(base, "temp"),
		ManifestIDFile:     "manifestId.txt",
		MaxPartDownloads:   2,
	}
}

type fakeEntry struct {
	path    string
	data    []byte
	readErr error
	reads   int
}

func (e *fakeEntry) Path() string { return e.path }
func (e *fakeEntry) Size() uint64 { return uint64(len(e.data)) }
func (e *fakeEntry) Read(context.Context) ([]byte, error) {
	e.reads++
	if e.readErr != nil {
		return nil, e.readErr
	}
	return e.data, nil
}

type fakeCDN struct {
	latest        string
	entries       []*fakeEntry
	manifestCalls int
}

func (c *fakeCDN) LatestManifestID(context.Context) (string, error) {
	return c.latest, nil
}

func (c *fakeCDN) Manifest(context.Context, string) ([]steam.ManifestFile, error) {
	c.manifestCalls++
	files := make([]steam.ManifestFile, len(c.entries))
	for i, e := range c.entries {
		files[i] = e
	}
	return files, nil
}

// vpkEntry describes one file for buildTestVPK.
type vpkEntry struct {
	path  string
	data  []byte
	index uint16 // 0x7FFF embeds the data in the directory blob
}

// buildTestVPK writes a minimal but valid v1 directory blob, placing each
// entry in its own tree group, and returns the blob plus the part files.
func buildTestVPK(t *testing.T, entries []vpkEntry) ([]byte, map[uint16][]byte) {
	t.Helper()

	const sentinel = 0x7FFF
	var tree, embedded bytes.Buffer
	parts := make(map[uint16][]byte)

	cstr := func(s string) {
		tree.WriteString(s)
		tree.WriteByte(0)
	}

	for _, e := range entries {
		dir := " "
		name := e.path
		if i := strings.LastIndex(e.path, "/"); i >= 0 {
			dir, name = e.path[:i], e.path[i+1:]
		}
		ext := " "
		if i := strings.LastIndex(name, "."); i >= 0 {
			name, ext = name[:i], name[i+1:]
		}

		var offset uint32
		if e.index == sentinel {
			offset = uint32(embedded.Len())
			embedded.Write(e.data)
		} else {
			offset = uint32(len(parts[e.index]))
			parts[e.index] = append(parts[e.index], e.data...)
		}

		cstr(ext)
		cstr(dir)
		cstr(name)
		rec := []any{
			crc32.ChecksumIEEE(e.data), // CRC
			uint16(0),                  // preload bytes
			e.index,                    // archive index
			offset,                     // entry offset
			uint32(len(e.data)),        // entry length
			uint16(0xFFFF),             // terminator
		}
		for _, v := range rec {
			if err := binary.Write(&tree, binary.LittleEndian, v); err != nil {
				t.Fatalf("write record: %v", err)
			}
		}
		cstr("") // end filenames
		cstr("") // end dirs
	}
	cstr("") // end extensions

	var blob bytes.Buffer
	for _, v := range []any{uint32(0x55AA1234), uint32(1), uint32(tree.Len())} {
		if err := binary.Write(&blob, binary.LittleEndian, v); err != nil {
			t.Fatalf("write header: %v", err)
		}
	}
	blob.Write(tree.Bytes())
	blob.Write(embedded.Bytes())
	return blob.Bytes(), parts
}

func readOutput(t *testing.T, cfg *config.Config, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.StaticDir, name))
	if err != nil {
		t.Fatalf("read output %s: %v", name, err)
	}
	return data
}

func TestRunUpToDateTransfersNothing(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if err := SaveManifestID(cfg.ManifestIDPath(), "42"); err != nil {
		t.Fatal(err)
	}

	cdn := &fakeCDN{latest: "42"}
	if err := New(cdn, cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if cdn.manifestCalls != 0 {
		t.Errorf("manifest fetched %d times on up-to-date run, want 0", cdn.manifestCalls)
	}
}

func TestRunDirectExtraction(t *testing.T) {
	cfg := testConfig(t)
	content := "\"lang\" { \"Language\" \"english\" }"
	bom := []byte{0xEF, 0xBB, 0xBF}

	part := &fakeEntry{path: "csgo/pak01_000.vpk", data: []byte("binary")}
	cdn := &fakeCDN{
		latest: "100",
		entries: []*fakeEntry{
			{path: `resource\csgo_english.txt`, data: append(bom, content...)},
			{path: "resource/csgo_schinese.txt", data: []byte("zh")},
			{path: "scripts/items/items_game.txt", data: []byte("items")},
			part,
		},
	}

	if err := New(cdn, cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readOutput(t, cfg, "csgo_english.txt"); string(got) != content {
		t.Errorf("csgo_english.txt = %q, want BOM-stripped %q", got, content)
	}
	if part.reads != 0 {
		t.Errorf("archive part fetched %d times on direct path, want 0", part.reads)
	}
	if got := ReadManifestID(cfg.ManifestIDPath()); got != "100" {
		t.Errorf("marker = %q, want 100", got)
	}
}

func TestRunArchivePath(t *testing.T) {
	cfg := testConfig(t)

	// Two targets embedded in the directory blob, one in part 5.
	dirBlob, parts := buildTestVPK(t, []vpkEntry{
		{path: "resource/csgo_english.txt", data: []byte("english data"), index: 0x7FFF},
		{path: "resource/csgo_schinese.txt", data: []byte("schinese data"), index: 0x7FFF},
		{path: "scripts/items/items_game.txt", data: []byte("items data"), index: 5},
	})

	partEntry := &fakeEntry{path: "csgo/pak01_005.vpk", data: parts[5]}
	decoy := &fakeEntry{path: "csgo/pak01_006.vpk", data: []byte("unrelated")}
	cdn := &fakeCDN{
		latest: "200",
		entries: []*fakeEntry{
			{path: "csgo/pak01_dir.vpk", data: dirBlob},
			partEntry,
			decoy,
		},
	}

	if err := New(cdn, cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readOutput(t, cfg, "csgo_english.txt"); string(got) != "english data" {
		t.Errorf("csgo_english.txt = %q", got)
	}
	if got := readOutput(t, cfg, "csgo_schinese.txt"); string(got) != "schinese data" {
		t.Errorf("csgo_schinese.txt = %q", got)
	}
	if got := readOutput(t, cfg, "items_game.txt"); string(got) != "items data" {
		t.Errorf("items_game.txt = %q", got)
	}

	if partEntry.reads != 1 {
		t.Errorf("part 5 fetched %d times, want 1", partEntry.reads)
	}
	if decoy.reads != 0 {
		t.Errorf("unneeded part 6 fetched %d times, want 0", decoy.reads)
	}
	if got := ReadManifestID(cfg.ManifestIDPath()); got != "200" {
		t.Errorf("marker = %q, want 200", got)
	}
}

func TestRunMissingPartIsNotFatal(t *testing.T) {
	cfg := testConfig(t)

	dirBlob, _ := buildTestVPK(t, []vpkEntry{
		{path: "resource/csgo_english.txt", data: []byte("english data"), index: 0x7FFF},
		{path: "resource/csgo_schinese.txt", data: []byte("zh data"), index: 7},
		{path: "scripts/items/items_game.txt", data: []byte("items data"), index: 0x7FFF},
	})

	// pak01_007.vpk is deliberately absent from the manifest.
	cdn := &fakeCDN{
		latest:  "300",
		entries: []*fakeEntry{{path: "csgo/pak01_dir.vpk", data: dirBlob}},
	}

	if err := New(cdn, cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run should not fail on a missing part: %v", err)
	}

	if got := readOutput(t, cfg, "csgo_english.txt"); string(got) != "english data" {
		t.Errorf("csgo_english.txt = %q", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.StaticDir, "csgo_schinese.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("csgo_schinese.txt should not exist, stat err = %v", err)
	}

	// Always-persist policy: the marker advances even on partial failure.
	if got := ReadManifestID(cfg.ManifestIDPath()); got != "300" {
		t.Errorf("marker = %q, want 300", got)
	}
}

func TestRunDirBlobFallsBackToLocalCopy(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	dirBlob, _ := buildTestVPK(t, []vpkEntry{
		{path: "resource/csgo_english.txt", data: []byte("cached english"), index: 0x7FFF},
		{path: "resource/csgo_schinese.txt", data: []byte("cached schinese"), index: 0x7FFF},
		{path: "scripts/items/items_game.txt", data: []byte("cached items"), index: 0x7FFF},
	})
	if err := os.WriteFile(filepath.Join(cfg.StaticDir, cfg.DirFilename), dirBlob, 0644); err != nil {
		t.Fatal(err)
	}

	// The fresh download fails; the manifest has a dir entry that errors.
	cdn := &fakeCDN{
		latest: "400",
		entries: []*fakeEntry{
			{path: "csgo/pak01_dir.vpk", readErr: fmt.Errorf("connection reset")},
		},
	}

	if err := New(cdn, cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run should fall back to the local directory copy: %v", err)
	}
	if got := readOutput(t, cfg, "items_game.txt"); string(got) != "cached items" {
		t.Errorf("items_game.txt = %q", got)
	}
}

func TestRunDirBlobMissingEverywhereIsFatal(t *testing.T) {
	cfg := testConfig(t)

	cdn := &fakeCDN{latest: "500", entries: []*fakeEntry{
		{path: "csgo/bin/server.dll", data: []byte("x")},
	}}

	if err := New(cdn, cfg).Run(context.Background()); err == nil {
		t.Fatal("expected fatal error when directory blob is unobtainable")
	}
	if got := ReadManifestID(cfg.ManifestIDPath()); got != "" {
		t.Errorf("marker should stay untouched on fatal failure, got %q", got)
	}
}

func TestRunGarbageDirBlobIsFatal(t *testing.T) {
	cfg := testConfig(t)

	cdn := &fakeCDN{latest: "600", entries: []*fakeEntry{
		{path: "csgo/pak01_dir.vpk", data: []byte("not a vpk at all")},
	}}

	if err := New(cdn, cfg).Run(context.Background()); err == nil {
		t.Fatal("expected fatal error for unparseable directory blob")
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifestId.txt")

	if got := ReadManifestID(path); got != "" {
		t.Errorf("missing marker = %q, want empty", got)
	}
	if err := SaveManifestID(path, "7616088054012423783"); err != nil {
		t.Fatalf("SaveManifestID: %v", err)
	}
	if got := ReadManifestID(path); got != "7616088054012423783" {
		t.Errorf("marker = %q", got)
	}

	// Whitespace written by other tools is trimmed on read.
	if err := os.WriteFile(path, []byte("  123\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := ReadManifestID(path); got != "123" {
		t.Errorf("marker = %q, want trimmed 123", got)
	}
}
