package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"benchcheck/internal/fileutil"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "artifact.json")

	if err := fileutil.WriteFileAtomic(target, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("unexpected content: %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, found %d entries", len(entries))
	}
}

func TestWriteFileAtomicOverwrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.json")

	if err := fileutil.WriteFileAtomic(target, []byte("first"), 0o644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := fileutil.WriteFileAtomic(target, []byte("second"), 0o644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "second" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if fileutil.Exists(filepath.Join(dir, "missing.mp4")) {
		t.Fatal("expected missing file to report false")
	}
	if fileutil.Exists(dir) {
		t.Fatal("expected directory to report false")
	}

	path := filepath.Join(dir, "present.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if !fileutil.Exists(path) {
		t.Fatal("expected existing file to report true")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := fileutil.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected copy content: %q", data)
	}
}
