package transform

import (
	"bytes"
	"io/ioutil"
	"testing"
)

func TestEncryptingDecryptingReaderRoundTrip(t *testing.T) {
	key, err := NewEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("snapshot bytes flowing through a pipe")

	encrypted := NewEncryptingReader(ioutil.NopCloser(bytes.NewReader(plaintext)), key, int64(len(plaintext)))
	ciphertext, err := ioutil.ReadAll(encrypted)
	if err != nil {
		t.Fatal(err)
	}

	decrypted := NewDecryptingReader(ioutil.NopCloser(bytes.NewReader(ciphertext)), key)
	out, err := ioutil.ReadAll(decrypted)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", out, plaintext)
	}
}

func TestDecryptingReaderPassthroughForPlaintext(t *testing.T) {
	plaintext := []byte("not encrypted at all")
	r := NewDecryptingReader(ioutil.NopCloser(bytes.NewReader(plaintext)), nil)
	out, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Fatalf("expected passthrough, got %q", out)
	}
}

func TestDecryptingReaderMissingKey(t *testing.T) {
	plaintext := []byte("secret snapshot bytes")
	encrypted := NewEncryptingReader(ioutil.NopCloser(bytes.NewReader(plaintext)), mustKey(t), int64(len(plaintext)))
	ciphertext, err := ioutil.ReadAll(encrypted)
	if err != nil {
		t.Fatal(err)
	}

	r := NewDecryptingReader(ioutil.NopCloser(bytes.NewReader(ciphertext)), nil)
	if _, err := ioutil.ReadAll(r); err != ErrNoEncryptionKey {
		t.Fatalf("expected ErrNoEncryptionKey, got %v", err)
	}
}

func mustKey(t *testing.T) *[32]byte {
	t.Helper()
	key, err := NewEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}
