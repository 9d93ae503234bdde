package transform

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := NewEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	var ciphertext bytes.Buffer
	if err := Encrypt(bytes.NewReader(plaintext), &ciphertext, key); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Decrypt(&ciphertext, &out, int64(len(plaintext)), key); err != nil {
		t.Fatal(err)
	}
	if out.String() != string(plaintext) {
		t.Fatalf("Decrypt() = %q, want %q", out.String(), plaintext)
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	key, err := NewEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("sensitive snapshot bytes")

	var ciphertext bytes.Buffer
	if err := Encrypt(bytes.NewReader(plaintext), &ciphertext, key); err != nil {
		t.Fatal(err)
	}
	tampered := ciphertext.Bytes()
	tampered[len(tampered)-1] ^= 0xFF

	var out bytes.Buffer
	err = Decrypt(bytes.NewReader(tampered), &out, int64(len(plaintext)), key)
	if err != ErrMessageAuthFailed {
		t.Fatalf("expected ErrMessageAuthFailed, got %v", err)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key, err := NewEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	other, err := NewEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("sensitive snapshot bytes")

	var ciphertext bytes.Buffer
	if err := Encrypt(bytes.NewReader(plaintext), &ciphertext, key); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err = Decrypt(&ciphertext, &out, int64(len(plaintext)), other)
	if err != ErrMessageAuthFailed {
		t.Fatalf("expected ErrMessageAuthFailed for wrong key, got %v", err)
	}
}
