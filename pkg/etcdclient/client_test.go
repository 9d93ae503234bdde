package etcdclient

import (
	"testing"
	"time"
)

func TestTLSConfigEmpty(t *testing.T) {
	var nilCfg *TLSConfig
	if !nilCfg.Empty() {
		t.Fatal("nil TLSConfig should be empty")
	}
	empty := &TLSConfig{}
	if !empty.Empty() {
		t.Fatal("zero-value TLSConfig should be empty")
	}
	populated := &TLSConfig{CAFile: "ca.pem", CertFile: "cert.pem", KeyFile: "key.pem"}
	if populated.Empty() {
		t.Fatal("populated TLSConfig should not be empty")
	}
}

func TestNewRejectsZeroTimeout(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Fatal("expected error for zero Timeout")
	}
}

func TestNewDefaultsTLS(t *testing.T) {
	c, err := New(&Config{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.TLS == nil {
		t.Fatal("expected TLS to default to a non-nil empty config")
	}
	if !c.cfg.TLS.Empty() {
		t.Fatal("defaulted TLS should be empty")
	}
}

func TestMemberStarted(t *testing.T) {
	started := &Member{Name: "etcd0"}
	if !started.Started() {
		t.Fatal("member with a name should be started")
	}
	unstarted := &Member{Name: ""}
	if unstarted.Started() {
		t.Fatal("member with an empty name should not be started")
	}
}
