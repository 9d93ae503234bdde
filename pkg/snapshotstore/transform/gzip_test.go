package transform

import (
	"bytes"
	"io/ioutil"
	"testing"
)

func TestGzipRoundTrip(t *testing.T) {
	plaintext := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility")

	compressed := NewGzipReader(ioutil.NopCloser(bytes.NewReader(plaintext)), 6)
	data, err := ioutil.ReadAll(compressed)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := IsGzipped(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected compressed output to report as gzipped")
	}

	decompressed, err := NewGunzipReader(ioutil.NopCloser(bytes.NewReader(data)))
	if err != nil {
		t.Fatal(err)
	}
	out, err := ioutil.ReadAll(decompressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", out, plaintext)
	}
}

func TestIsGzippedFalseForPlaintext(t *testing.T) {
	ok, err := IsGzipped(bytes.NewReader([]byte("plain text, not gzip")))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected plaintext to report as not gzipped")
	}
}

func TestIsGzippedEmptyInput(t *testing.T) {
	ok, err := IsGzipped(bytes.NewReader(nil))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected empty input to report as not gzipped")
	}
}
