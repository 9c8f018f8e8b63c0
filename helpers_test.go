package petra

import (
	"os"
	"testing"
	"time"
)

func writeFile(shard, filename string, body []byte) error {
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filename, body, 0o644)
}

func chtimes(filename string, atime, mtime time.Time) error {
	return os.Chtimes(filename, atime, mtime)
}

func fileOpen(path string) (*os.File, error) {
	return os.Open(path)
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected %s to not exist", path)
	} else if !os.IsNotExist(err) {
		t.Fatalf("unexpected error stating %s: %v", path, err)
	}
}
