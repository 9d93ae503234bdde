// Package agentconfig builds the agent's immutable configuration from the
// environment variables spec.md §6 names, replacing the teacher's pattern
// of consulting os.Getenv throughout the manager with a single struct
// bound once via pkg/util/env and validated before anything else runs.
package agentconfig

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/etcdclient"
	"github.com/etcdadm/etcdadm-agent/pkg/peers"
	"github.com/etcdadm/etcdadm-agent/pkg/util/env"
)

const defaultFailurePeriodLimit = 10 * time.Second

// Config is every value the agent's decision procedure and recovery
// actions need, bound once from the environment and validated up front so
// a misconfiguration fails fast as spec.md §7's Configuration error class,
// rather than surfacing midway through a reconfigure invocation.
type Config struct {
	MemberCount int    `env:"ETCDADM_MEMBER_COUNT" required:"true"`
	MemberIndex int    `env:"ETCDADM_MEMBER_INDEX" required:"true"`
	SnapshotURI string `env:"ETCDADM_CLUSTER_SNAPSHOTS_S3_URI" required:"true"`

	InitialCluster string `env:"ETCD_INITIAL_CLUSTER" required:"true"`
	Endpoints      string `env:"ETCD_ENDPOINTS" required:"true"`

	KubernetesCluster string `env:"KUBERNETES_CLUSTER" required:"true"`

	EtcdVersion        string `env:"ETCD_VERSION"`
	SystemdServiceName string `env:"ETCDADM_MEMBER_SYSTEMD_SERVICE_NAME"`
	StateFilesDir      string `env:"ETCDADM_STATE_FILES_DIR"`
	DataDir            string `env:"ETCD_DATA_DIR"`

	ClusterFailurePeriodLimit time.Duration `env:"ETCD_CLUSTER_FAILURE_PERIOD_LIMIT"`
	MemberFailurePeriodLimit  time.Duration `env:"ETCD_MEMBER_FAILURE_PERIOD_LIMIT"`

	AWSRoleSessionName string `env:"ETCDADM_SNAPSHOTS_AWS_ROLE_SESSION_NAME"`
	SpacesAccessKey    string `env:"SPACES_ACCESS_KEY"`
	SpacesSecretKey    string `env:"SPACES_SECRET_KEY"`

	CACertFile     string `env:"ETCDCTL_CACERT"`
	ClientCertFile string `env:"ETCDCTL_CERT"`
	ClientKeyFile  string `env:"ETCDCTL_KEY"`

	AWSRegion          string `env:"AWS_DEFAULT_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`

	// The running-node probe (C2) backend(s). Any combination may be set;
	// a configured backend contributes its count to the sum per spec.md
	// §9's Open Question on double-counting. RunningNodeFile is the file
	// sentinel spec.md §4.3 describes for test mode.
	UseAWSAutoScaling bool   `env:"ETCDADM_RUNNING_NODE_AWS_ASG"`
	AWSTagName        string `env:"ETCDADM_RUNNING_NODE_AWS_TAG_NAME"`
	AWSTagValue       string `env:"ETCDADM_RUNNING_NODE_AWS_TAG_VALUE"`
	DigitalOceanToken string `env:"DIGITALOCEAN_ACCESS_TOKEN"`
	DigitalOceanTag   string `env:"ETCDADM_RUNNING_NODE_DO_TAG"`
	RunningNodeFile   string `env:"ETCDADM_RUNNING_NODE_FILE"`

	// SnapshotCompression and SnapshotEncryptionKey control the optional
	// transform layer save_snapshot/snapshot download pass a staged
	// snapshot through, the teacher's SnapshotConfiguration.Compression/
	// Encryption toggles adapted to this agent's config surface. Unlike
	// the teacher, which derives its encryption key from the cluster CA
	// key it manages, this agent holds no CA key material, so the key is
	// supplied directly as 64 hex characters (32 bytes).
	SnapshotCompression   bool   `env:"ETCDADM_SNAPSHOT_COMPRESSION"`
	SnapshotEncryptionKey string `env:"ETCDADM_SNAPSHOT_ENCRYPTION_KEY"`

	// Derived fields, filled in by Load after env binding.
	Directory     *peers.Directory
	Q             int
	EncryptionKey *[32]byte
}

// Load reads the process environment into a Config, applies spec.md §6's
// documented defaults, derives the Peer Directory and quorum, and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.SetEnvs(cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// ETCDCTL_ENDPOINT is a legacy etcdctl convenience variable that would
	// silently override every explicit endpoint argument this agent's
	// client adapter passes; spec.md §6 requires it be unset before any
	// etcd client call is made.
	os.Unsetenv("ETCDCTL_ENDPOINT")

	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.EtcdVersion == "" {
		c.EtcdVersion = "3.2.10"
	}
	if c.SystemdServiceName == "" {
		c.SystemdServiceName = "etcd-member-" + strconv.Itoa(c.MemberIndex)
	}
	if c.StateFilesDir == "" {
		c.StateFilesDir = filepath.Join("/var/run/etcdadm", "etcdadm-agent-state")
	}
	if c.DataDir == "" {
		c.DataDir = "/var/lib/etcd"
	}
	if c.ClusterFailurePeriodLimit == 0 {
		c.ClusterFailurePeriodLimit = defaultFailurePeriodLimit
	}
	if c.MemberFailurePeriodLimit == 0 {
		c.MemberFailurePeriodLimit = defaultFailurePeriodLimit
	}
	return nil
}

func (c *Config) validate() error {
	if c.MemberCount <= 0 {
		return errors.New("ETCDADM_MEMBER_COUNT must be positive")
	}
	if c.MemberIndex < 0 || c.MemberIndex >= c.MemberCount {
		return errors.Errorf("ETCDADM_MEMBER_INDEX (%d) out of range [0,%d)", c.MemberIndex, c.MemberCount)
	}

	directory, err := peers.NewDirectory(c.InitialCluster, c.Endpoints)
	if err != nil {
		return errors.Wrap(err, "cannot parse ETCD_INITIAL_CLUSTER/ETCD_ENDPOINTS")
	}
	if directory.N() != c.MemberCount {
		return errors.Errorf("ETCD_INITIAL_CLUSTER lists %d members, ETCDADM_MEMBER_COUNT says %d", directory.N(), c.MemberCount)
	}
	c.Directory = directory
	c.Q = c.MemberCount/2 + 1

	if err := c.validateTLS(); err != nil {
		return err
	}
	if err := c.validateSnapshotEncryptionKey(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSnapshotEncryptionKey() error {
	if c.SnapshotEncryptionKey == "" {
		return nil
	}
	raw, err := hex.DecodeString(c.SnapshotEncryptionKey)
	if err != nil {
		return errors.Wrap(err, "ETCDADM_SNAPSHOT_ENCRYPTION_KEY must be hex-encoded")
	}
	if len(raw) != 32 {
		return errors.Errorf("ETCDADM_SNAPSHOT_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	c.EncryptionKey = &key
	return nil
}

func (c *Config) validateTLS() error {
	set := 0
	for _, f := range []string{c.CACertFile, c.ClientCertFile, c.ClientKeyFile} {
		if f != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return errors.New("ETCDCTL_CACERT, ETCDCTL_CERT, and ETCDCTL_KEY must be set together or not at all")
	}
	return nil
}

// TLSConfig returns the etcdclient TLS material this Config describes, nil
// when none was configured.
func (c *Config) TLSConfig() *etcdclient.TLSConfig {
	if c.CACertFile == "" {
		return nil
	}
	return &etcdclient.TLSConfig{
		CAFile:   c.CACertFile,
		CertFile: c.ClientCertFile,
		KeyFile:  c.ClientKeyFile,
	}
}

// MemberName returns this invocation's own member name, name(MemberIndex).
func (c *Config) MemberName() (string, error) {
	return c.Directory.Name(c.MemberIndex)
}

// LocalSnapshotPath is where a staged snapshot is kept between the
// snapshot store and the local snapshot_restore/snapshot_save calls.
func (c *Config) LocalSnapshotPath() (string, error) {
	name, err := c.MemberName()
	if err != nil {
		return "", err
	}
	return filepath.Join(c.StateFilesDir, "snapshots", name+".db"), nil
}

// RunningNodeCounter builds C2's running-node probe from whichever
// backend(s) are configured, summing them per spec.md §9's Open Question
// if more than one is. When none are configured it falls back to the
// file sentinel spec.md §4.3 describes for test mode.
func (c *Config) RunningNodeCounter() (peers.RunningNodeCounter, error) {
	var counters []peers.RunningNodeCounter

	if c.UseAWSAutoScaling {
		counter, err := peers.NewAmazonAutoScalingNodeCounter(c.KubernetesCluster)
		if err != nil {
			return nil, errors.Wrap(err, "cannot construct AWS autoscaling node counter")
		}
		counters = append(counters, counter)
	}
	if c.AWSTagName != "" {
		counter, err := peers.NewAmazonInstanceTagNodeCounter(c.AWSTagName, c.AWSTagValue, c.KubernetesCluster)
		if err != nil {
			return nil, errors.Wrap(err, "cannot construct AWS instance-tag node counter")
		}
		counters = append(counters, counter)
	}
	if c.DigitalOceanToken != "" {
		counters = append(counters, peers.NewDigitalOceanNodeCounter(c.DigitalOceanToken, c.DigitalOceanTag, c.KubernetesCluster))
	}

	if len(counters) == 0 {
		path := c.RunningNodeFile
		if path == "" {
			path = filepath.Join(c.StateFilesDir, "running-count")
		}
		counters = append(counters, &peers.FileRunningNodeCounter{Path: path})
	}

	if len(counters) == 1 {
		return counters[0], nil
	}
	return &peers.SummedRunningNodeCounter{Counters: counters}, nil
}
