// Package decider implements C8, the reconfiguration decision procedure.
// Decide is a pure function: it consumes an Observation and returns a
// Decision describing what the executor (pkg/recovery) should do, without
// itself touching disk, the network, or the local clock. Keeping the
// branching here and the side effects in pkg/recovery lets the state
// machine in spec.md §4.1 be exercised directly by table-driven tests.
package decider

import (
	"github.com/etcdadm/etcdadm-agent/pkg/observer"
	"github.com/etcdadm/etcdadm-agent/pkg/statestore"
	"github.com/etcdadm/etcdadm-agent/pkg/svcctl"
)

// ActionKind names the recovery action a Decision selects.
type ActionKind string

const (
	// ActionBootstrap restores from a snapshot if one is available and
	// starts (or restarts) the local member, new or existing.
	ActionBootstrap ActionKind = "bootstrap"

	// ActionReplaceFailed removes this member's stale registration and
	// re-adds it under the same name, for a member that has been
	// unhealthy longer than the member failure limit.
	ActionReplaceFailed ActionKind = "replace_failed"

	// ActionReloadAndWait asks the supervisor to reload so it notices any
	// drop-in change, then waits for the next invocation to re-observe.
	ActionReloadAndWait ActionKind = "reload_and_wait"

	// ActionNoOp performs no recovery action; Reason explains why.
	ActionNoOp ActionKind = "noop"
)

// Action is the recovery action a Decision selects, plus why for the
// no-op case.
type Action struct {
	Kind   ActionKind
	Reason string
}

// Decision is Decide's complete output: the action to execute and,
// whenever H_cluster is false, the supervisor unit type spec.md §4.1
// requires be written before any action runs.
type Decision struct {
	Action Action

	// SetUnitType is true in the ¬H_cluster branch, where spec.md §4.1
	// requires writing the supervisor drop-in before deciding on
	// bootstrap/reload, regardless of which of the two is chosen.
	SetUnitType bool
	UnitType    svcctl.UnitType
}

func noop(reason string) *Decision {
	return &Decision{Action: Action{Kind: ActionNoOp, Reason: reason}}
}

func bootstrap() *Decision {
	return &Decision{Action: Action{Kind: ActionBootstrap}}
}

// Decide implements spec.md §4.1's exact procedure. n is the configured
// cluster size (ETCDADM_MEMBER_COUNT) and q is the majority quorum,
// ⌊n/2⌋+1.
func Decide(obs *observer.Observation, n, q int) *Decision {
	if obs.HCluster {
		return decideClusterHealthy(obs)
	}
	return decideClusterUnhealthy(obs, n, q)
}

func decideClusterHealthy(obs *observer.Observation) *Decision {
	if obs.ULocal {
		if obs.Status == statestore.StatusReplaced {
			return noop("replacement in progress, waiting for supervisor to restart this member")
		}
		return bootstrap()
	}
	if obs.MemberFailureExceeded {
		return &Decision{Action: Action{Kind: ActionReplaceFailed}}
	}
	return noop("member failure limit not exceeded (member healthy, or a recent restart still settling)")
}

func decideClusterUnhealthy(obs *observer.Observation, n, q int) *Decision {
	remaining := q - obs.RunningCount + 1
	unitType := svcctl.UnitTypeNotify
	if remaining >= 2 {
		unitType = svcctl.UnitTypeSimple
	}

	d := &Decision{SetUnitType: true, UnitType: unitType}

	if obs.RunningCount < n {
		d.Action = Action{Kind: ActionBootstrap}
		return d
	}
	if obs.ClusterFailureExceeded {
		d.Action = Action{Kind: ActionBootstrap}
		return d
	}
	d.Action = Action{Kind: ActionReloadAndWait}
	return d
}
