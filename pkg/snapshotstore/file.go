package snapshotstore

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore is the test-mode / single-node backend: it reads and writes a
// snapshot blob at a fixed local path.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore rooted at path, creating its parent
// directory if necessary.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil && !os.IsExist(err) {
		return nil, errors.Wrapf(err, "cannot create snapshot directory: %#v", filepath.Dir(path))
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Exists() (bool, error) {
	_, err := os.Stat(f.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *FileStore) Download(w io.WriterAt) error {
	r, err := os.Open(f.path)
	if err != nil {
		return errors.Wrapf(err, "cannot open snapshot file: %#v", f.path)
	}
	defer r.Close()

	var off int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.WriteAt(buf[:n], off); werr != nil {
				return werr
			}
			off += int64(n)
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func (f *FileStore) Upload(r io.ReadCloser) error {
	defer r.Close()
	w, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "cannot open snapshot file: %#v", f.path)
	}
	defer w.Close()

	_, err = io.Copy(w, r)
	return err
}
