package statestore

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

// ErrNameNotFound is returned by ExistingNameFromDataDir when no member in
// the data directory's member bucket carries the given peer URL.
var ErrNameNotFound = errors.New("existing member name not found in data dir")

// ExistingNameFromDataDir recovers a member's own etcd name by reading its
// on-disk member bucket directly, bypassing etcd entirely. This lets a
// member that crashed before reporting its assigned name rediscover it on
// the next invocation, rather than being treated as brand new (spec.md §6,
// restart-with-prior-identity).
func ExistingNameFromDataDir(snapDBPath, peerURL string) (string, error) {
	db, err := bolt.Open(snapDBPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return "", errors.Wrapf(err, "cannot open etcd member database: %#v", snapDBPath)
	}
	defer db.Close()

	var name string
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte("members"))
		if b == nil {
			return ErrNameNotFound
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m struct {
				ID       uint64   `json:"id"`
				Name     string   `json:"name"`
				PeerURLs []string `json:"peerURLs"`
			}
			if err := json.Unmarshal(v, &m); err != nil {
				log.Error("cannot unmarshal etcd member record", zap.Error(err))
				continue
			}
			for _, u := range m.PeerURLs {
				if u == peerURL {
					name = m.Name
					return nil
				}
			}
		}
		return ErrNameNotFound
	})
	return name, err
}
