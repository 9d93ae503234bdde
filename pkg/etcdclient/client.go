// Package etcdclient implements C3, a typed wrapper over the subset of the
// etcd client surface the agent's decision procedure needs: member_list,
// member_add, member_remove, endpoint_health, endpoint_status, and
// snapshot_save/restore. Every call takes its target endpoint(s) explicitly
// rather than relying on client-wide endpoint state, since the agent talks
// to whichever peer the Observer selects for a given probe (spec.md §4.4).
package etcdclient

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/etcd/clientv3"
	"go.etcd.io/etcd/clientv3/snapshot"
	"go.etcd.io/etcd/etcdserver/api/v3rpc/rpctypes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

// Member mirrors the subset of an etcd cluster member's fields the decision
// procedure and recovery actions consult.
type Member struct {
	ID         uint64
	Name       string
	PeerURLs   []string
	ClientURLs []string
}

// Started reports whether this member has completed raft bootstrap and
// appeared in a peer's response with a non-empty name, the definition
// member_list's U_local check relies on (spec.md §4.3).
func (m *Member) Started() bool {
	return m.Name != ""
}

// TLSConfig carries the client certificate material used to dial etcd over
// HTTPS, mirroring ETCDCTL_CACERT/CERT/KEY per spec.md §7.
type TLSConfig struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// Empty reports whether no TLS material was configured.
func (t *TLSConfig) Empty() bool {
	return t == nil || (t.CAFile == "" && t.CertFile == "" && t.KeyFile == "")
}

func (t *TLSConfig) clientConfig() (*tls.Config, error) {
	if t.Empty() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load client certificate/key")
	}
	pool, err := newCertPool(t.CAFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
	}, nil
}

// Config configures a Client.
type Config struct {
	// Timeout bounds every individual RPC made through the client.
	Timeout time.Duration

	// TLS carries optional client certificate material.
	TLS *TLSConfig
}

// Client wraps clientv3.Client, scoping every call to an explicit endpoint
// or endpoint set and an explicit timeout rather than holding process-wide
// defaults.
type Client struct {
	cfg *Config
}

// New validates cfg and returns a Client ready to dial endpoints on demand.
func New(cfg *Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.New("etcdclient: Timeout must be positive")
	}
	if cfg.TLS == nil {
		cfg.TLS = &TLSConfig{}
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) dial(ctx context.Context, endpoints []string) (*clientv3.Client, error) {
	tlsConfig, err := c.cfg.TLS.clientConfig()
	if err != nil {
		return nil, err
	}
	client, err := clientv3.New(clientv3.Config{
		Context:     ctx,
		Endpoints:   endpoints,
		DialTimeout: c.cfg.Timeout,
		TLS:         tlsConfig,
		LogConfig: &zap.Config{
			Level:         zap.NewAtomicLevelAt(zapcore.ErrorLevel),
			Encoding:      "logfmt",
			EncoderConfig: log.NewDefaultEncoderConfig(),
			OutputPaths:   []string{"/dev/null"},
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot dial etcd endpoints %v", endpoints)
	}
	return client, nil
}

// MemberList returns every member in member_list's response as seen from
// the given endpoint, including unstarted members with an empty Name.
func (c *Client) MemberList(ctx context.Context, endpoint string) ([]*Member, error) {
	client, err := c.dial(ctx, []string{endpoint})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := client.MemberList(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "member_list against %#v", endpoint)
	}
	members := make([]*Member, 0, len(resp.Members))
	for _, m := range resp.Members {
		members = append(members, &Member{
			ID:         m.ID,
			Name:       m.Name,
			PeerURLs:   m.PeerURLs,
			ClientURLs: m.ClientURLs,
		})
	}
	return members, nil
}

// MemberAdd issues member_add against endpoint, registering peerURL as a
// new unstarted member and returning its assigned member ID.
func (c *Client) MemberAdd(ctx context.Context, endpoint, peerURL string) (*Member, error) {
	client, err := c.dial(ctx, []string{endpoint})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := client.MemberAdd(ctx, []string{peerURL})
	if err != nil {
		return nil, errors.Wrapf(err, "member_add %#v against %#v", peerURL, endpoint)
	}
	return &Member{
		ID:         resp.Member.ID,
		Name:       resp.Member.Name,
		PeerURLs:   resp.Member.PeerURLs,
		ClientURLs: resp.Member.ClientURLs,
	}, nil
}

// MemberRemove issues member_remove for id against endpoint. A member
// already absent is treated as success, matching the teacher's tolerance
// for ErrMemberNotFound.
func (c *Client) MemberRemove(ctx context.Context, endpoint string, id uint64) error {
	client, err := c.dial(ctx, []string{endpoint})
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if _, err := client.MemberRemove(ctx, id); err != nil && err != rpctypes.ErrMemberNotFound {
		return errors.Wrapf(err, "member_remove %x against %#v", id, endpoint)
	}
	return nil
}

// EndpointHealthy reports whether endpoint responds to a serializable read,
// the basis for H_local and one input to a peer's H_cluster probe (spec.md
// §4.1, §4.3).
func (c *Client) EndpointHealthy(ctx context.Context, endpoint string) bool {
	client, err := c.dial(ctx, []string{endpoint})
	if err != nil {
		log.Debugf("endpoint_health dial failed for %#v: %v", endpoint, err)
		return false
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	_, err = client.Get(ctx, "health", clientv3.WithSerializable())
	if err == nil || err == rpctypes.ErrPermissionDenied || err == rpctypes.ErrGRPCCompacted {
		return true
	}
	log.Debugf("endpoint_health failed for %#v: %v", endpoint, err)
	return false
}

// Status is what EndpointStatus returns for an endpoint: the raft term,
// the raft index, and the member ID of the current leader, which
// save_snapshot compares against this member's own ID to decide
// leadership.
type Status struct {
	Term      uint64
	RaftIndex uint64
	Leader    uint64
}

func (c *Client) EndpointStatus(ctx context.Context, endpoint string) (*Status, error) {
	client, err := c.dial(ctx, []string{endpoint})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	resp, err := client.Status(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "endpoint_status against %#v", endpoint)
	}
	return &Status{
		Term:      resp.RaftTerm,
		RaftIndex: resp.RaftIndex,
		Leader:    uint64(resp.Leader),
	}, nil
}

// SnapshotSave streams endpoint's current state into w, as C7's
// save_snapshot action does before uploading to C4's snapshot store.
func (c *Client) SnapshotSave(ctx context.Context, endpoint string, w io.Writer) error {
	client, err := c.dial(ctx, []string{endpoint})
	if err != nil {
		return err
	}
	defer client.Close()

	rc, err := client.Snapshot(ctx)
	if err != nil {
		return errors.Wrapf(err, "snapshot_save against %#v", endpoint)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return errors.Wrap(err, "cannot stream snapshot")
	}
	return nil
}

// RestoreConfig configures a disaster-recovery restore of a downloaded
// snapshot into a fresh, single-member data directory.
type RestoreConfig struct {
	SnapshotPath   string
	Name           string
	OutputDataDir  string
	PeerURL        string
	InitialCluster string
}

// SnapshotStat describes a staged snapshot file's contents, the
// verification save_snapshot runs against a freshly written
// snapshots/<name>.db before it is uploaded (spec.md §4.2, §4.4).
type SnapshotStat struct {
	Hash      uint32
	Revision  int64
	TotalKey  int
	TotalSize int64
}

// SnapshotStatus wraps clientv3/snapshot.Manager.Status, reading path's
// header and hash without needing a live etcd connection.
func SnapshotStatus(path string) (*SnapshotStat, error) {
	mgr := snapshot.NewV3(log.L())
	st, err := mgr.Status(path)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot_status against %#v", path)
	}
	return &SnapshotStat{
		Hash:      st.Hash,
		Revision:  st.Revision,
		TotalKey:  st.TotalKey,
		TotalSize: st.TotalSize,
	}, nil
}

// SnapshotRestore writes a fresh etcd data directory at cfg.OutputDataDir
// seeded from cfg.SnapshotPath, matching the teacher's use of
// clientv3/snapshot.Manager.Restore for single-member disaster recovery.
func SnapshotRestore(cfg *RestoreConfig) error {
	mgr := snapshot.NewV3(log.L())
	err := mgr.Restore(snapshot.RestoreConfig{
		SnapshotPath:        cfg.SnapshotPath,
		Name:                cfg.Name,
		OutputDataDir:       cfg.OutputDataDir,
		PeerURLs:            []string{cfg.PeerURL},
		InitialCluster:      cfg.InitialCluster,
		InitialClusterToken: "etcd-cluster",
		SkipHashCheck:       true,
	})
	if err != nil {
		return errors.Wrap(err, "cannot restore snapshot")
	}
	return nil
}
