// Package svcctl implements C5, the local service-control surface the
// agent uses to hand a reconfigured identity to the etcd process it does
// not itself supervise: writing the member's environment file, writing a
// systemd drop-in that pins its unit type, and triggering a supervisor
// reload so the running unit picks up both.
package svcctl

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

// ClusterState is the value written to a member's env file, distinguishing
// a fresh bootstrap from joining a cluster that already knows this member.
type ClusterState string

const (
	ClusterStateNew      ClusterState = "new"
	ClusterStateExisting ClusterState = "existing"
)

// UnitType is the systemd service Type directive selected by the Decider's
// supervisor unit-type rule (spec.md §4.1).
type UnitType string

const (
	UnitTypeSimple UnitType = "simple"
	UnitTypeNotify UnitType = "notify"
)

// Controller writes the per-member files the local etcd unit reads on
// (re)start and asks systemd to notice they changed.
type Controller struct {
	// UnitName is the systemd unit (e.g. "etcd-member-0") whose drop-in
	// directory this Controller manages.
	UnitName string

	// MemberName is the etcd member name (e.g. "etcd0") used to name the
	// env file and drop-in file, per spec.md §6's on-disk state layout.
	MemberName string

	// StateDir is the directory the env file and the "<unit>.d" drop-in
	// directory are written under.
	StateDir string
}

func (c *Controller) envFilePath() string {
	return filepath.Join(c.StateDir, c.MemberName+".env")
}

func (c *Controller) dropInPath() string {
	return filepath.Join(c.StateDir, c.UnitName+".d", c.MemberName+".conf")
}

// WriteEnvFile writes the member's environment file containing exactly
// one assignment, ETCD_INITIAL_CLUSTER_STATE=<state>, as spec.md §3's data
// model requires.
func (c *Controller) WriteEnvFile(state ClusterState) error {
	if err := os.MkdirAll(c.StateDir, 0755); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "cannot create state directory: %#v", c.StateDir)
	}
	contents := fmt.Sprintf("ETCD_INITIAL_CLUSTER_STATE=%s\n", state)
	path := c.envFilePath()
	if err := ioutil.WriteFile(path, []byte(contents), 0600); err != nil {
		return errors.Wrapf(err, "cannot write env file: %#v", path)
	}
	return nil
}

// SetUnitType writes a systemd drop-in under "<unit>.d/" containing a
// [Service] Type=simple|notify stanza (spec.md §4.6). Per spec.md §9's
// second Open Question, writing this drop-in does not itself guarantee
// the running unit has picked it up — Reload must still be called
// separately, and even then systemd only notices the file changed, it
// does not restart the unit on its own.
func (c *Controller) SetUnitType(unitType UnitType) error {
	path := c.dropInPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "cannot create drop-in directory: %#v", filepath.Dir(path))
	}
	contents := fmt.Sprintf("[Service]\nType=%s\n", unitType)
	if err := ioutil.WriteFile(path, []byte(contents), 0644); err != nil {
		return errors.Wrapf(err, "cannot write unit drop-in: %#v", path)
	}
	return nil
}

// Reload asks the systemd manager to re-read unit files and drop-ins via
// its D-Bus API, equivalent to "systemctl daemon-reload".
func (c *Controller) Reload(ctx context.Context) error {
	conn, err := dbus.NewSystemdConnectionContext(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot connect to systemd")
	}
	defer conn.Close()

	if err := conn.ReloadContext(ctx); err != nil {
		return errors.Wrap(err, "cannot reload systemd manager")
	}
	log.Debugf("systemd manager reloaded for unit %#v", c.UnitName)
	return nil
}
