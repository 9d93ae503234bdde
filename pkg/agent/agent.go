// Package agent wires the Peer Directory, Etcd Client Adapter, Observer,
// Decider, Service Controller, and Recovery Executor into the four verbs
// spec.md §6 exposes: save, replace, reconfigure, and check. It plays the
// role the teacher's pkg/manager.Manager plays for an embedded etcd
// instance, except each method here is a single, complete invocation
// rather than a long-lived supervising goroutine.
package agent

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/agentconfig"
	"github.com/etcdadm/etcdadm-agent/pkg/decider"
	"github.com/etcdadm/etcdadm-agent/pkg/etcdclient"
	"github.com/etcdadm/etcdadm-agent/pkg/log"
	"github.com/etcdadm/etcdadm-agent/pkg/observer"
	"github.com/etcdadm/etcdadm-agent/pkg/recovery"
	"github.com/etcdadm/etcdadm-agent/pkg/snapshotstore"
	"github.com/etcdadm/etcdadm-agent/pkg/statestore"
	"github.com/etcdadm/etcdadm-agent/pkg/svcctl"
)

// Agent bundles one invocation's worth of wiring for a single member.
type Agent struct {
	cfg      *agentconfig.Config
	client   *etcdclient.Client
	store    *statestore.Store
	observer *observer.Observer
	executor *recovery.Executor
}

// New wires every component from cfg.
func New(cfg *agentconfig.Config) (*Agent, error) {
	client, err := etcdclient.New(&etcdclient.Config{
		Timeout: 10 * time.Second,
		TLS:     cfg.TLSConfig(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot construct etcd client")
	}

	runningCounter, err := cfg.RunningNodeCounter()
	if err != nil {
		return nil, errors.Wrap(err, "cannot construct running-node counter")
	}

	store := statestore.New(cfg.StateFilesDir)

	name, err := cfg.MemberName()
	if err != nil {
		return nil, err
	}

	snaps, err := snapshotstore.New(&snapshotstore.Config{
		URI:                cfg.SnapshotURI,
		AWSRoleSessionName: cfg.AWSRoleSessionName,
		SpacesAccessKey:    cfg.SpacesAccessKey,
		SpacesSecretKey:    cfg.SpacesSecretKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot construct snapshot store")
	}

	localSnapshotPath, err := cfg.LocalSnapshotPath()
	if err != nil {
		return nil, err
	}

	obs := &observer.Observer{
		Directory:           cfg.Directory,
		Index:               cfg.MemberIndex,
		Client:              client,
		RunningCounter:      runningCounter,
		Store:               store,
		Q:                   cfg.Q,
		MemberFailureLimit:  cfg.MemberFailurePeriodLimit,
		ClusterFailureLimit: cfg.ClusterFailurePeriodLimit,
	}

	exec := &recovery.Executor{
		Directory: cfg.Directory,
		Index:     cfg.MemberIndex,
		Client:    client,
		Store:     store,
		SvcCtl: &svcctl.Controller{
			UnitName:   cfg.SystemdServiceName,
			MemberName: name,
			StateDir:   cfg.StateFilesDir,
		},
		Snaps:             snaps,
		DataDir:           cfg.DataDir,
		LocalSnapshotPath: localSnapshotPath,
		EtcdUID:           -1,
		EtcdGID:           -1,
		Compress:          cfg.SnapshotCompression,
		EncryptionKey:     cfg.EncryptionKey,
	}

	return &Agent{cfg: cfg, client: client, store: store, observer: obs, executor: exec}, nil
}

// Reconfigure runs C6 (Observe), C8 (Decide), and executes the selected
// C7 action, the "reconfigure" verb's full body (spec.md §6).
func (a *Agent) Reconfigure(ctx context.Context) error {
	obs, err := a.observer.Observe(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot observe cluster state")
	}

	d := decider.Decide(obs, a.cfg.MemberCount, a.cfg.Q)
	log.Infof("decided action=%s reason=%q", d.Action.Kind, d.Action.Reason)

	if err := a.executor.Execute(ctx, d); err != nil {
		return errors.Wrapf(err, "cannot execute action %s", d.Action.Kind)
	}
	return nil
}

// Check updates the member- and cluster-failure timestamps from a fresh
// health read, the "check" verb's full body.
func (a *Agent) Check(ctx context.Context) error {
	return a.observer.Check(ctx)
}

// Save runs the "save" verb: upload a snapshot if, and only if, this
// member is the healthy cluster's current raft leader.
func (a *Agent) Save(ctx context.Context) error {
	obs, err := a.observer.Observe(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot observe cluster state")
	}
	return a.executor.SaveSnapshot(ctx, obs.HCluster)
}

// Replace runs the "replace" verb: force the replace-failed-member action
// regardless of what the Decider would otherwise choose.
func (a *Agent) Replace(ctx context.Context) error {
	return a.executor.ReplaceFailed(ctx)
}
