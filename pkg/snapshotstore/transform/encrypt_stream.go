package transform

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var encryptedHeader = []byte("ENCRYPTED:")

func peek(r io.ReadCloser, n int) ([]byte, io.ReadCloser) {
	buf := make([]byte, n)
	read, _ := io.ReadFull(r, buf)
	return buf[:read], &prependReader{buf: buf[:read], r: r}
}

type prependReader struct {
	buf []byte
	r   io.ReadCloser
}

func (p *prependReader) Read(b []byte) (int, error) {
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		return n, nil
	}
	return p.r.Read(b)
}

func (p *prependReader) Close() error { return p.r.Close() }

func pipe(fn func(w io.Writer) error) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_ = pw.CloseWithError(fn(pw))
	}()
	return pr
}

// NewEncryptingReader wraps r so that its bytes are AES-encrypted as they
// are read, prefixed with a header identifying the stream as encrypted
// and the plaintext size needed to locate the trailing signature.
func NewEncryptingReader(r io.ReadCloser, key *[32]byte, size int64) io.ReadCloser {
	return pipe(func(w io.Writer) error {
		defer r.Close()
		if _, err := w.Write(encryptedHeader); err != nil {
			return err
		}
		sizeBuf := make([]byte, binary.MaxVarintLen64)
		n := binary.PutVarint(sizeBuf, size)
		if _, err := w.Write(sizeBuf[:n]); err != nil {
			return err
		}
		return Encrypt(r, w, key)
	})
}

// ErrNoEncryptionKey is returned by NewDecryptingReader when the source
// stream is encrypted but no key was provided to decrypt it.
var ErrNoEncryptionKey = errors.New("snapshot is encrypted but no decryption key was provided")

// NewDecryptingReader inspects r for the encrypted-stream header and, if
// present, wraps it with decryption using key. If r is not encrypted it is
// returned unchanged.
func NewDecryptingReader(r io.ReadCloser, key *[32]byte) io.ReadCloser {
	header, r := peek(r, len(encryptedHeader))
	if !bytes.Equal(header, encryptedHeader) {
		return r
	}
	return pipe(func(w io.Writer) error {
		defer r.Close()
		buf := make([]byte, len(encryptedHeader))
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		if key == nil {
			return ErrNoEncryptionKey
		}
		size, err := binary.ReadVarint(&byteReader{r})
		if err != nil {
			return err
		}
		return Decrypt(r, w, size, key)
	})
}

type byteReader struct {
	r io.Reader
}

func (b *byteReader) ReadByte() (byte, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}
