// Package transform implements the optional snapshot-stream transforms
// layered between C3's raw snapshot bytes and C4's store backends: gzip
// compression and AES-CTR/HMAC encryption.
package transform

import (
	"bytes"
	"compress/gzip"
	"io"
)

var gzipMagicHeader = []byte{'\x1f', '\x8b'}

// IsGzipped reports whether r begins with the gzip magic header.
func IsGzipped(r io.ReaderAt) (bool, error) {
	buf := make([]byte, 2)
	n, err := r.ReadAt(buf, 0)
	if n == 0 && err == io.EOF {
		return false, nil
	}
	if err != nil && err != io.EOF {
		return false, err
	}
	return bytes.Equal(buf[:n], gzipMagicHeader), nil
}

// NewGzipReader wraps r so that its bytes are gzip-compressed as they are
// read, suitable for pairing with a store's Upload.
func NewGzipReader(r io.ReadCloser, level int) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		defer r.Close()

		gw, err := gzip.NewWriterLevel(pw, level)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		defer gw.Close()

		if _, err := io.Copy(gw, r); err != nil {
			_ = pw.CloseWithError(err)
		}
	}()
	return pr
}

type gunzipReadCloser struct {
	io.Reader
	gz     *gzip.Reader
	source io.ReadCloser
}

func (g *gunzipReadCloser) Close() error {
	defer g.source.Close()
	return g.gz.Close()
}

// NewGunzipReader wraps r so that its bytes are decompressed as they are
// read, the inverse of NewGzipReader.
func NewGunzipReader(r io.ReadCloser) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &gunzipReadCloser{Reader: gz, gz: gz, source: r}, nil
}
