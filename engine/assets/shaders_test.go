package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/lumen/engine/core"
)

func writeSPIRV(t *testing.T, path string) {
	t.Helper()
	code := make([]byte, 24)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	if err := os.WriteFile(path, code, 0o644); err != nil {
		t.Fatal(err)
	}
}

const manifest = `
[[shader]]
name = "mesh.vert"
stage = "vertex"
file = "mesh.vert.spv"

[[shader]]
name = "mesh.frag"
stage = "fragment"
entry = "fs_main"
file = "mesh.frag.spv"
`

func TestLoadShaders(t *testing.T) {
	dir := t.TempDir()
	writeSPIRV(t, filepath.Join(dir, "mesh.vert.spv"))
	writeSPIRV(t, filepath.Join(dir, "mesh.frag.spv"))
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	blobs, err := LoadShaders(dir)
	if err != nil {
		t.Fatalf("LoadShaders() = %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("got %d blobs", len(blobs))
	}
	if blobs[0].EntryPoint != "main" || blobs[0].Stage != ShaderStageVertex {
		t.Errorf("blob 0 = %+v", blobs[0])
	}
	if blobs[1].EntryPoint != "fs_main" || blobs[1].Stage != ShaderStageFragment {
		t.Errorf("blob 1 = %+v", blobs[1])
	}
}

func TestLoadShadersMissingBinary(t *testing.T) {
	dir := t.TempDir()
	writeSPIRV(t, filepath.Join(dir, "mesh.vert.spv"))
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadShaders(dir); !errors.Is(err, core.ErrMissingShader) {
		t.Errorf("LoadShaders() = %v, want ErrMissingShader", err)
	}
}

func TestLoadShadersBadMagic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mesh.vert.spv"), make([]byte, 24), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readSPIRV(filepath.Join(dir, "mesh.vert.spv")); err == nil {
		t.Error("readSPIRV accepted a zero header")
	}
}

func TestWatcherCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	path := filepath.Join(dir, "mesh.frag.spv")
	for i := 0; i < 3; i++ {
		writeSPIRV(t, path)
	}
	// ignored
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-w.Changes():
		if got != path {
			t.Errorf("change = %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	select {
	case got := <-w.Changes():
		t.Errorf("burst reported twice, second %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherCloseClosesChanges(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-w.Changes(); ok {
		t.Error("Changes() still open after Close")
	}
}
