package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestTrimBOM(t *testing.T) {
	content := []byte("\"lang\"\n{\n}")
	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, content...)

	got := TrimBOM(withBOM)
	if !bytes.Equal(got, content) {
		t.Errorf("expected BOM stripped, got %q", got)
	}

	// Idempotent: stripping an already-stripped buffer is a no-op.
	if again := TrimBOM(got); !bytes.Equal(again, content) {
		t.Errorf("second strip changed data: %q", again)
	}
}

func TestTrimBOMShortBuffers(t *testing.T) {
	cases := [][]byte{nil, {}, {0xEF}, {0xEF, 0xBB}}
	for _, c := range cases {
		if got := TrimBOM(c); !bytes.Equal(got, c) {
			t.Errorf("TrimBOM(%v) = %v, want unchanged", c, got)
		}
	}
}

func TestSaveFileStripsBOM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "csgo_english.txt")
	content := []byte("hello world")
	data := append([]byte{0xEF, 0xBB, 0xBF}, content...)

	n, err := SaveFile(path, data, true)
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if n != len(content) {
		t.Errorf("expected %d bytes written, got %d", len(content), n)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(onDisk, content) {
		t.Errorf("on-disk content mismatch: got %q, want %q", onDisk, content)
	}
}

func TestSaveFileKeepsBinaryVerbatim(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pak01_dir.vpk")
	data := []byte{0xEF, 0xBB, 0xBF, 0x34, 0x12, 0xAA, 0x55}

	if _, err := SaveFile(path, data, false); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	onDisk, _ := os.ReadFile(path)
	if !bytes.Equal(onDisk, data) {
		t.Errorf("binary file modified: got %v, want %v", onDisk, data)
	}
}

func TestSaveFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := SaveFile(filepath.Join(dir, "out.txt"), []byte("data"), false); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.txt" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestFileSizes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "present.txt"), []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	sizes := FileSizes(dir, []string{"present.txt", "missing.txt"})
	if sizes["present.txt"] != 5 {
		t.Errorf("present.txt size = %d, want 5", sizes["present.txt"])
	}
	if sizes["missing.txt"] != 0 {
		t.Errorf("missing.txt size = %d, want 0", sizes["missing.txt"])
	}
}
