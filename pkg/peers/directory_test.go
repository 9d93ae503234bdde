package peers

import "testing"

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := NewDirectory(
		"etcd0=https://10.0.0.1:2380,etcd1=https://10.0.0.2:2380,etcd2=https://10.0.0.3:2380",
		"https://10.0.0.1:2379,https://10.0.0.2:2379,https://10.0.0.3:2379",
	)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return d
}

func TestNewDirectory(t *testing.T) {
	d := testDirectory(t)
	if d.N() != 3 {
		t.Fatalf("N() = %d, want 3", d.N())
	}
	name, err := d.Name(1)
	if err != nil {
		t.Fatal(err)
	}
	if name != "etcd1" {
		t.Fatalf("Name(1) = %v, want etcd1", name)
	}
	peerURL, err := d.PeerURL(1)
	if err != nil {
		t.Fatal(err)
	}
	if peerURL != "https://10.0.0.2:2380" {
		t.Fatalf("PeerURL(1) = %v, want https://10.0.0.2:2380", peerURL)
	}
	clientURL, err := d.ClientURL(2)
	if err != nil {
		t.Fatal(err)
	}
	if clientURL != "https://10.0.0.3:2379" {
		t.Fatalf("ClientURL(2) = %v, want https://10.0.0.3:2379", clientURL)
	}
}

func TestNewDirectoryMismatchedLength(t *testing.T) {
	_, err := NewDirectory("etcd0=https://10.0.0.1:2380", "https://10.0.0.1:2379,https://10.0.0.2:2379")
	if err == nil {
		t.Fatal("expected error for mismatched member counts")
	}
}

func TestNewDirectoryMalformedEntry(t *testing.T) {
	_, err := NewDirectory("etcd0", "https://10.0.0.1:2379")
	if err == nil {
		t.Fatal("expected error for entry missing '='")
	}
}

func TestDirectoryIndexOutOfRange(t *testing.T) {
	d := testDirectory(t)
	if _, err := d.Name(3); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if _, err := d.Name(-1); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestDirectoryNext(t *testing.T) {
	d := testDirectory(t)
	tests := []struct {
		i, want int
	}{
		{0, 1},
		{1, 2},
		{2, 0},
	}
	for _, tt := range tests {
		if got := d.Next(tt.i); got != tt.want {
			t.Errorf("Next(%d) = %d, want %d", tt.i, got, tt.want)
		}
	}
}

func TestDirectoryInitialClusterString(t *testing.T) {
	d := testDirectory(t)
	want := "etcd0=https://10.0.0.1:2380,etcd1=https://10.0.0.2:2380,etcd2=https://10.0.0.3:2380"
	if got := d.InitialClusterString(); got != want {
		t.Fatalf("InitialClusterString() = %v, want %v", got, want)
	}
}
