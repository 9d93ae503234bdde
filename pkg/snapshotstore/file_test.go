package snapshotstore

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "snapshot.db")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}

	exists, err := store.Exists()
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected store to report not existing before Upload")
	}

	payload := []byte("snapshot contents")
	if err := store.Upload(ioutil.NopCloser(bytes.NewReader(payload))); err != nil {
		t.Fatal(err)
	}

	exists, err = store.Exists()
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected store to report existing after Upload")
	}

	f, err := os.CreateTemp(dir, "download")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := store.Download(f); err != nil {
		t.Fatal(err)
	}
	got, err := ioutil.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("downloaded content = %q, want %q", got, payload)
	}
}
