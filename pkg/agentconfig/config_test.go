package agentconfig

import (
	"os"
	"strings"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	env := map[string]string{
		"ETCDADM_MEMBER_COUNT":               "3",
		"ETCDADM_MEMBER_INDEX":               "0",
		"ETCDADM_CLUSTER_SNAPSHOTS_S3_URI":   "s3://example-bucket/cluster",
		"ETCD_INITIAL_CLUSTER":               "etcd0=https://10.0.0.1:2380,etcd1=https://10.0.0.2:2380,etcd2=https://10.0.0.3:2380",
		"ETCD_ENDPOINTS":                     "https://10.0.0.1:2379,https://10.0.0.2:2379,https://10.0.0.3:2379",
		"KUBERNETES_CLUSTER":                 "test-cluster",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoadAppliesDefaultsAndDerivesQ(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Q != 2 {
		t.Errorf("Q = %d, want 2", cfg.Q)
	}
	if cfg.EtcdVersion != "3.2.10" {
		t.Errorf("EtcdVersion = %q", cfg.EtcdVersion)
	}
	if cfg.SystemdServiceName != "etcd-member-0" {
		t.Errorf("SystemdServiceName = %q", cfg.SystemdServiceName)
	}
	name, err := cfg.MemberName()
	if err != nil {
		t.Fatal(err)
	}
	if name != "etcd0" {
		t.Errorf("MemberName() = %q, want etcd0", name)
	}
	if cfg.TLSConfig() != nil {
		t.Error("expected nil TLSConfig when no TLS vars set")
	}
}

func TestLoadRejectsMismatchedMemberCount(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ETCDADM_MEMBER_COUNT", "5")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for mismatched member count")
	}
}

func TestLoadRejectsPartialTLS(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ETCDCTL_CACERT", "/etc/etcd/ca.pem")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for partial TLS configuration")
	}
}

func TestLoadMissingRequiredVar(t *testing.T) {
	os.Clearenv()
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for missing required environment variables")
	}
}

func TestLoadRejectsMalformedEncryptionKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ETCDADM_SNAPSHOT_ENCRYPTION_KEY", "not-hex")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-hex encryption key")
	}
}

func TestLoadRejectsShortEncryptionKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ETCDADM_SNAPSHOT_ENCRYPTION_KEY", "aabbcc")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an encryption key shorter than 32 bytes")
	}
}

func TestLoadAcceptsValidEncryptionKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ETCDADM_SNAPSHOT_ENCRYPTION_KEY", strings.Repeat("ab", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EncryptionKey == nil {
		t.Fatal("expected EncryptionKey to be derived from ETCDADM_SNAPSHOT_ENCRYPTION_KEY")
	}
}
