package observer

import (
	"context"
	"testing"
	"time"

	"github.com/etcdadm/etcdadm-agent/pkg/etcdclient"
	"github.com/etcdadm/etcdadm-agent/pkg/peers"
	"github.com/etcdadm/etcdadm-agent/pkg/statestore"
)

type fakeEtcdClient struct {
	healthy map[string]bool
	members map[string][]*etcdclient.Member
}

func (f *fakeEtcdClient) EndpointHealthy(ctx context.Context, endpoint string) bool {
	return f.healthy[endpoint]
}

func (f *fakeEtcdClient) MemberList(ctx context.Context, endpoint string) ([]*etcdclient.Member, error) {
	return f.members[endpoint], nil
}

type fakeRunningCounter struct {
	n int
}

func (f *fakeRunningCounter) CountRunning(ctx context.Context) (int, error) {
	return f.n, nil
}

func testDirectory(t *testing.T) *peers.Directory {
	t.Helper()
	d, err := peers.NewDirectory(
		"etcd0=https://10.0.0.1:2380,etcd1=https://10.0.0.2:2380,etcd2=https://10.0.0.3:2380",
		"https://10.0.0.1:2379,https://10.0.0.2:2379,https://10.0.0.3:2379",
	)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestObserveHealthyClusterNotUnstarted(t *testing.T) {
	dir := testDirectory(t)
	client := &fakeEtcdClient{
		healthy: map[string]bool{
			"https://10.0.0.1:2379": true,
			"https://10.0.0.2:2379": true,
			"https://10.0.0.3:2379": true,
		},
		members: map[string][]*etcdclient.Member{
			"https://10.0.0.2:2379": {
				{ID: 1, Name: "etcd0", PeerURLs: []string{"https://10.0.0.1:2380"}},
			},
		},
	}
	o := &Observer{
		Directory:      dir,
		Index:          0,
		Client:         client,
		RunningCounter: &fakeRunningCounter{n: 3},
		Store:          statestore.New(t.TempDir()),
		Q:              2,
	}
	obs, err := o.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !obs.HLocal {
		t.Error("expected HLocal true")
	}
	if obs.HealthyCount != 3 {
		t.Errorf("HealthyCount = %d, want 3", obs.HealthyCount)
	}
	if !obs.HCluster {
		t.Error("expected HCluster true")
	}
	if obs.ULocal {
		t.Error("expected ULocal false: member is already started")
	}
	if obs.RunningCount != 3 {
		t.Errorf("RunningCount = %d, want 3", obs.RunningCount)
	}
}

func TestObserveUnstartedMember(t *testing.T) {
	dir := testDirectory(t)
	client := &fakeEtcdClient{
		healthy: map[string]bool{
			"https://10.0.0.1:2379": false,
			"https://10.0.0.2:2379": true,
			"https://10.0.0.3:2379": true,
		},
		members: map[string][]*etcdclient.Member{
			"https://10.0.0.2:2379": {
				{ID: 1, Name: "", PeerURLs: []string{"https://10.0.0.1:2380"}},
			},
		},
	}
	o := &Observer{
		Directory:      dir,
		Index:          0,
		Client:         client,
		RunningCounter: &fakeRunningCounter{n: 3},
		Store:          statestore.New(t.TempDir()),
		Q:              2,
	}
	obs, err := o.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if obs.HLocal {
		t.Error("expected HLocal false")
	}
	if !obs.HCluster {
		t.Error("expected HCluster true (2 of 3 healthy meets Q=2)")
	}
	if !obs.ULocal {
		t.Error("expected ULocal true: entry present with empty name")
	}
}

func TestCheckRecordsAndClearsFailure(t *testing.T) {
	dir := testDirectory(t)
	store := statestore.New(t.TempDir())
	o := &Observer{
		Directory: dir,
		Index:     0,
		Store:     store,
		Q:         2,
		Client: &fakeEtcdClient{
			healthy: map[string]bool{
				"https://10.0.0.1:2379": false,
				"https://10.0.0.2:2379": false,
				"https://10.0.0.3:2379": false,
			},
		},
	}
	if err := o.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := store.FailureSince("member"); err != nil || !ok {
		t.Fatalf("expected member failure to be recorded, ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.FailureSince("cluster"); err != nil || !ok {
		t.Fatalf("expected cluster failure to be recorded, ok=%v err=%v", ok, err)
	}

	o.Client = &fakeEtcdClient{
		healthy: map[string]bool{
			"https://10.0.0.1:2379": true,
			"https://10.0.0.2:2379": true,
			"https://10.0.0.3:2379": true,
		},
	}
	if err := o.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := store.FailureSince("member"); err != nil || ok {
		t.Fatalf("expected member failure to be cleared, ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.FailureSince("cluster"); err != nil || ok {
		t.Fatalf("expected cluster failure to be cleared, ok=%v err=%v", ok, err)
	}
}

func TestFailureExceeded(t *testing.T) {
	dir := testDirectory(t)
	store := &statestore.Store{Dir: t.TempDir(), Clock: &fixedClock{t: time.Unix(1000, 0)}}
	if err := store.RecordFailureSince("member"); err != nil {
		t.Fatal(err)
	}
	o := &Observer{
		Directory: dir,
		Index:     0,
		Store:     store,
		Q:         2,
		MemberFailureLimit: 10 * time.Second,
		Client: &fakeEtcdClient{healthy: map[string]bool{
			"https://10.0.0.1:2379": false,
			"https://10.0.0.2:2379": true,
			"https://10.0.0.3:2379": true,
		}},
		RunningCounter: &fakeRunningCounter{n: 3},
	}
	store.Clock = &fixedClock{t: time.Unix(1005, 0)}
	obs, err := o.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if obs.MemberFailureExceeded {
		t.Error("5s should not exceed a 10s limit")
	}

	store.Clock = &fixedClock{t: time.Unix(1015, 0)}
	obs, err = o.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !obs.MemberFailureExceeded {
		t.Error("15s should exceed a 10s limit")
	}
}

type fixedClock struct{ t time.Time }

func (f *fixedClock) Now() time.Time { return f.t }
