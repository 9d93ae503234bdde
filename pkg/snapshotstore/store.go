// Package snapshotstore implements C4, the snapshot store abstraction
// behind save-snapshot and restore-from-snapshot: a single `exists`,
// `upload`, and `download` surface over one snapshot blob, backed by
// the local filesystem, S3, or DigitalOcean Spaces depending on the
// configured URI's scheme. The blob is the object the URI itself names
// (its path is used as the key as given); `snapshot.db` is appended
// only when an S3 or Spaces URI names a bucket and no object path.
package snapshotstore

import (
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Store is the interface every backend implements: exists reports whether
// a snapshot blob is already present, Download streams it to w, and
// Upload streams it from r.
type Store interface {
	Exists() (bool, error)
	Download(w io.WriterAt) error
	Upload(r io.ReadCloser) error
}

var (
	// ErrInvalidScheme is returned when a snapshot URI's scheme does not
	// match any known backend.
	ErrInvalidScheme = errors.New("invalid snapshot store scheme")
)

var schemes = []string{"file://", "s3://", "http://", "https://"}

func hasValidScheme(uri string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(uri, s) {
			return true
		}
	}
	return false
}

// parsedURI is the deconstructed form of a snapshot store URI: which kind
// of backend it names, and the bucket/path (or local path) within it.
type parsedURI struct {
	kind     string // "file", "s3", or "spaces"
	bucket   string
	key      string
	endpoint string
}

// parseURI parses the ETCDADM_CLUSTER_SNAPSHOTS_S3_URI-style configuration
// string into the backend it names. Despite the env var's name, any of the
// three schemes below may appear there.
func parseURI(uri string) (*parsedURI, error) {
	if !hasValidScheme(uri) {
		return nil, errors.Wrapf(ErrInvalidScheme, "%#v", uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse snapshot store uri %#v", uri)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return &parsedURI{kind: "file", key: filepath.Join(u.Host, u.Path)}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" {
			key = "snapshot.db"
		}
		return &parsedURI{kind: "s3", bucket: u.Host, key: key}, nil
	case "http", "https":
		if !strings.Contains(u.Host, "digitaloceanspaces.com") {
			return nil, errors.Wrapf(ErrInvalidScheme, "%#v", uri)
		}
		bucket, key := splitBucketKey(strings.TrimPrefix(u.Path, "/"))
		return &parsedURI{kind: "spaces", bucket: bucket, key: key, endpoint: u.Host}, nil
	}
	return nil, errors.Wrapf(ErrInvalidScheme, "%#v", uri)
}

func splitBucketKey(s string) (bucket, key string) {
	parts := strings.SplitN(s, "/", 2)
	switch len(parts) {
	case 1:
		return parts[0], "snapshot.db"
	case 2:
		return parts[0], parts[1]
	default:
		return "", ""
	}
}

// Config configures New: the snapshot store URI plus whichever cloud
// backend's credentials are needed to reach it.
type Config struct {
	URI string

	AWSRoleSessionName string

	SpacesAccessKey string
	SpacesSecretKey string
}

// New builds the Store backend named by cfg.URI's scheme.
func New(cfg *Config) (Store, error) {
	p, err := parseURI(cfg.URI)
	if err != nil {
		return nil, err
	}
	switch p.kind {
	case "file":
		return NewFileStore(p.key)
	case "s3":
		return NewS3Store(&S3Config{
			RoleSessionName: cfg.AWSRoleSessionName,
			Bucket:          p.bucket,
			Key:             p.key,
		})
	case "spaces":
		return NewSpacesStore(&SpacesConfig{
			Endpoint:  p.endpoint,
			Bucket:    p.bucket,
			Key:       p.key,
			AccessKey: cfg.SpacesAccessKey,
			SecretKey: cfg.SpacesSecretKey,
		})
	default:
		return nil, errors.Wrapf(ErrInvalidScheme, "%#v", cfg.URI)
	}
}
