// Package observer implements C6: it gathers the four observable facts
// the Decider consumes (H_local, H_cluster, running_count, U_local) and
// maintains the failure-beginning timestamps those facts are compared
// against across invocations.
package observer

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/etcdclient"
	"github.com/etcdadm/etcdadm-agent/pkg/log"
	"github.com/etcdadm/etcdadm-agent/pkg/peers"
	"github.com/etcdadm/etcdadm-agent/pkg/statestore"
)

const (
	memberFailureKey  = "member"
	clusterFailureKey = "cluster"
)

// Observation is the complete set of facts the Decider's state machine
// switches on, gathered fresh on every invocation.
type Observation struct {
	HLocal                 bool
	HealthyCount           int
	HCluster               bool
	RunningCount           int
	ULocal                 bool
	MemberFailureExceeded  bool
	ClusterFailureExceeded bool
	Status                 statestore.Status
}

// EtcdClient is the subset of *etcdclient.Client the Observer needs,
// narrowed to an interface so tests can substitute a fake rather than
// dialing real etcd endpoints.
type EtcdClient interface {
	EndpointHealthy(ctx context.Context, endpoint string) bool
	MemberList(ctx context.Context, endpoint string) ([]*etcdclient.Member, error)
}

// Observer wires the Peer Directory, Etcd Client Adapter, running-node
// probe, and State Store together to produce an Observation.
type Observer struct {
	Directory      *peers.Directory
	Index          int
	Client         EtcdClient
	RunningCounter peers.RunningNodeCounter
	Store          *statestore.Store

	// Q is the majority quorum, ⌊N/2⌋+1.
	Q int

	MemberFailureLimit  time.Duration
	ClusterFailureLimit time.Duration
}

// Observe gathers H_local, H_cluster, running_count, U_local, and the two
// failure-exceeded flags, without mutating any persisted state (that is
// Check's job).
func (o *Observer) Observe(ctx context.Context) (*Observation, error) {
	localURL, err := o.Directory.ClientURL(o.Index)
	if err != nil {
		return nil, err
	}

	obs := &Observation{}
	obs.HLocal = o.Client.EndpointHealthy(ctx, localURL)

	healthy := 0
	for i := 0; i < o.Directory.N(); i++ {
		url, err := o.Directory.ClientURL(i)
		if err != nil {
			return nil, err
		}
		if o.Client.EndpointHealthy(ctx, url) {
			healthy++
		}
	}
	obs.HealthyCount = healthy
	obs.HCluster = healthy >= o.Q

	running, err := o.RunningCounter.CountRunning(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot determine running-node count")
	}
	obs.RunningCount = running

	unstarted, err := o.unstarted(ctx)
	if err != nil {
		return nil, err
	}
	obs.ULocal = unstarted

	status, err := o.Store.ReadStatus()
	if err != nil {
		return nil, err
	}
	obs.Status = status

	memberExceeded, err := o.failureExceeded(memberFailureKey, o.MemberFailureLimit)
	if err != nil {
		return nil, err
	}
	obs.MemberFailureExceeded = memberExceeded

	clusterExceeded, err := o.failureExceeded(clusterFailureKey, o.ClusterFailureLimit)
	if err != nil {
		return nil, err
	}
	obs.ClusterFailureExceeded = clusterExceeded

	return obs, nil
}

// unstarted implements member_is_unstarted (spec.md §4.3): it queries the
// next peer's member_list and checks whether this member's peer URL is
// present but the entry has not yet reported a name.
func (o *Observer) unstarted(ctx context.Context) (bool, error) {
	nextIdx := o.Directory.Next(o.Index)
	nextURL, err := o.Directory.ClientURL(nextIdx)
	if err != nil {
		return false, err
	}
	selfPeerURL, err := o.Directory.PeerURL(o.Index)
	if err != nil {
		return false, err
	}

	members, err := o.Client.MemberList(ctx, nextURL)
	if err != nil {
		log.Debugf("member_list against next peer %#v failed, treating as not-unstarted: %v", nextURL, err)
		return false, nil
	}
	for _, m := range members {
		for _, u := range m.PeerURLs {
			if u == selfPeerURL {
				return !m.Started(), nil
			}
		}
	}
	return false, nil
}

func (o *Observer) failureExceeded(key string, limit time.Duration) (bool, error) {
	dur, ok, err := o.Store.FailureDuration(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return dur > limit, nil
}

// Check updates the member- and cluster-failure timestamps from the
// current health observation: a timestamp is created the first tick a
// condition is observed unhealthy, and cleared the first tick it is
// observed healthy again (spec.md §4.3, invariant 2).
func (o *Observer) Check(ctx context.Context) error {
	localURL, err := o.Directory.ClientURL(o.Index)
	if err != nil {
		return err
	}
	if o.Client.EndpointHealthy(ctx, localURL) {
		if err := o.Store.ClearFailureSince(memberFailureKey); err != nil {
			return err
		}
	} else if err := o.Store.RecordFailureSince(memberFailureKey); err != nil {
		return err
	}

	healthy := 0
	for i := 0; i < o.Directory.N(); i++ {
		url, err := o.Directory.ClientURL(i)
		if err != nil {
			return err
		}
		if o.Client.EndpointHealthy(ctx, url) {
			healthy++
		}
	}
	if healthy >= o.Q {
		if err := o.Store.ClearFailureSince(clusterFailureKey); err != nil {
			return err
		}
	} else if err := o.Store.RecordFailureSince(clusterFailureKey); err != nil {
		return err
	}
	return nil
}
