package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"io"

	"github.com/pkg/errors"
)

// ErrMessageAuthFailed is returned by Decrypt when the trailing HMAC
// signature does not match the decrypted plaintext.
var ErrMessageAuthFailed = errors.New("snapshot message authentication failed")

// NewEncryptionKey generates a random 256-bit key for Encrypt/Decrypt.
func NewEncryptionKey() (*[32]byte, error) {
	key := [32]byte{}
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, errors.Wrap(err, "cannot generate snapshot encryption key")
	}
	return &key, nil
}

func newRandomIV() ([]byte, error) {
	iv := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// Encrypt encrypts the bytes read from in with 256-bit AES-CTR, appending
// an HMAC-SHA512/256 signature of the plaintext, and writes the result to
// out as [iv][ciphertext][signature].
func Encrypt(in io.Reader, out io.Writer, key *[32]byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}
	iv, err := newRandomIV()
	if err != nil {
		return err
	}
	if _, err := out.Write(iv); err != nil {
		return err
	}
	sw := cipher.StreamWriter{S: cipher.NewCTR(block, iv), W: out}
	h := hmac.New(sha512.New512_256, key[:])
	if _, err := io.Copy(io.MultiWriter(sw, h), in); err != nil {
		return err
	}
	_, err = out.Write(h.Sum(nil))
	return err
}

// Decrypt reverses Encrypt, reading size plaintext bytes' worth of
// ciphertext from in and verifying the trailing HMAC signature.
func Decrypt(in io.Reader, out io.Writer, size int64, key *[32]byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}
	iv := make([]byte, 16)
	if _, err := io.ReadFull(in, iv); err != nil {
		return err
	}
	sr := cipher.StreamReader{S: cipher.NewCTR(block, iv), R: io.LimitReader(in, size)}
	h := hmac.New(sha512.New512_256, key[:])
	if _, err := io.Copy(io.MultiWriter(out, h), sr); err != nil {
		return err
	}
	sig := make([]byte, h.Size())
	if _, err := io.ReadFull(in, sig); err != nil {
		return err
	}
	if !hmac.Equal(h.Sum(nil), sig) {
		return ErrMessageAuthFailed
	}
	return nil
}
