// Package peers implements the static peer directory (spec §3, "Member
// identity") and the running-node probe used by the Observer (spec §4.3,
// running_count) and by C8's bootstrap branches.
package peers

import (
	"fmt"

	"github.com/pkg/errors"

	netutil "github.com/etcdadm/etcdadm-agent/pkg/util/net"
)

// Directory is a pure, immutable mapping from member index to the three
// derived identities a member has throughout its life: its etcd member
// name, its peer URL, and its client URL. Per spec §3 invariant 1, these
// are pure functions of static configuration and are never mutated once
// built.
type Directory struct {
	names      []string
	peerURLs   []string
	clientURLs []string
}

// NewDirectory builds a Directory from the two comma-separated
// configuration strings ETCD_INITIAL_CLUSTER ("name=peer-url" pairs) and
// ETCD_ENDPOINTS (client URLs), both ordered consistently by member index.
func NewDirectory(initialCluster, endpoints string) (*Directory, error) {
	clusterParts := netutil.SplitCommaList(initialCluster)
	endpointParts := netutil.SplitCommaList(endpoints)
	if len(clusterParts) == 0 {
		return nil, errors.New("ETCD_INITIAL_CLUSTER must not be empty")
	}
	if len(clusterParts) != len(endpointParts) {
		return nil, errors.Errorf("ETCD_INITIAL_CLUSTER has %d members but ETCD_ENDPOINTS has %d", len(clusterParts), len(endpointParts))
	}

	d := &Directory{
		names:      make([]string, len(clusterParts)),
		peerURLs:   make([]string, len(clusterParts)),
		clientURLs: endpointParts,
	}
	for i, p := range clusterParts {
		name, peerURL, err := splitNameValue(p)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot parse ETCD_INITIAL_CLUSTER entry %d", i)
		}
		d.names[i] = name
		d.peerURLs[i] = peerURL
	}
	return d, nil
}

func splitNameValue(s string) (name, value string, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", errors.Errorf("expected name=peer-url, received %#v", s)
}

// N returns the total member count.
func (d *Directory) N() int { return len(d.names) }

func (d *Directory) indexInRange(i int) error {
	if i < 0 || i >= d.N() {
		return errors.Errorf("member index %d out of range [0,%d)", i, d.N())
	}
	return nil
}

// Name returns name(i).
func (d *Directory) Name(i int) (string, error) {
	if err := d.indexInRange(i); err != nil {
		return "", err
	}
	return d.names[i], nil
}

// PeerURL returns peerURL(i).
func (d *Directory) PeerURL(i int) (string, error) {
	if err := d.indexInRange(i); err != nil {
		return "", err
	}
	return d.peerURLs[i], nil
}

// ClientURL returns clientURL(i).
func (d *Directory) ClientURL(i int) (string, error) {
	if err := d.indexInRange(i); err != nil {
		return "", err
	}
	return d.clientURLs[i], nil
}

// Next returns the index of the member that follows i, wrapping around.
// This is the "next peer" spec §4.1/§4.3 consults to query member_list for
// U_local.
func (d *Directory) Next(i int) int {
	return (i + 1) % d.N()
}

// InitialClusterString renders the "name=peer-url,..." string etcd expects
// as --initial-cluster, covering every member in the directory.
func (d *Directory) InitialClusterString() string {
	parts := make([]string, d.N())
	for i := range d.names {
		parts[i] = fmt.Sprintf("%s=%s", d.names[i], d.peerURLs[i])
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "," + p
	}
	return out
}
