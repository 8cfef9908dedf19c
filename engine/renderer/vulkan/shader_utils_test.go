package vulkan

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func spirvWords(words ...uint32) []byte {
	out := make([]byte, 0, len(words)*4)
	for _, w := range words {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func TestLoadSPIRV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vert.spv")
	if err := os.WriteFile(path, spirvWords(spirvMagic, 0x00010000, 7, 42), 0o644); err != nil {
		t.Fatal(err)
	}

	code, err := LoadSPIRV(path)
	if err != nil {
		t.Fatalf("LoadSPIRV() = %v", err)
	}
	want := []uint32{spirvMagic, 0x00010000, 7, 42}
	if len(code) != len(want) {
		t.Fatalf("LoadSPIRV() returned %d words, want %d", len(code), len(want))
	}
	for i := range want {
		if code[i] != want[i] {
			t.Errorf("word %d = %#x, want %#x", i, code[i], want[i])
		}
	}
}

func TestLoadSPIRVRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	tests := map[string][]byte{
		"empty.spv":     {},
		"unaligned.spv": append(spirvWords(spirvMagic), 0x01),
		"glsl.spv":      []byte("#version 450\n\x00\x00\x00"),
	}
	for name, data := range tests {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadSPIRV(path); err == nil {
			t.Errorf("LoadSPIRV(%s) succeeded, want error", name)
		}
	}

	if _, err := LoadSPIRV(filepath.Join(dir, "missing.spv")); err == nil {
		t.Errorf("LoadSPIRV(missing) succeeded, want error")
	}
}
