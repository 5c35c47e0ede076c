package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a fixture file of exactly the requested size, filled with
// a repeating non-zero pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	for i := range buf {
		buf[i] = byte('a' + i%16)
	}
	for written := int64(0); written < size; {
		chunk := int64(len(buf))
		if size-written < chunk {
			chunk = size - written
		}
		n, err := f.Write(buf[:chunk])
		if err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		written += int64(n)
	}
}
