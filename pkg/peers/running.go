package peers

import (
	"context"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

// RunningNodeCounter is the infrastructure-layer probe backing spec §4.1's
// running_count and §4.3's running_count definition: "queried from the
// Peer Directory's infrastructure probe (cloud API in production, file in
// test mode)".
type RunningNodeCounter interface {
	CountRunning(ctx context.Context) (int, error)
}

// FileRunningNodeCounter is the test-mode probe: it reads an integer from a
// sentinel file. Per spec §9's third Open Question, a missing sentinel file
// is logged as an error but treated as zero running nodes rather than
// failing the invocation, allowing the Decider to proceed — this may mask
// configuration errors, and is preserved here exactly as specified rather
// than "fixed".
type FileRunningNodeCounter struct {
	Path string
}

func (f *FileRunningNodeCounter) CountRunning(ctx context.Context) (int, error) {
	data, err := ioutil.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Errorf("running-node sentinel file missing, assuming 0: %v", f.Path)
			return 0, nil
		}
		return 0, errors.Wrapf(err, "cannot read running-node sentinel file: %#v", f.Path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrapf(err, "cannot parse running-node sentinel file: %#v", f.Path)
	}
	return n, nil
}

// SummedRunningNodeCounter composes multiple counters and sums their
// results. This is how the two cloud-provider tag schemas (autoscaling
// group membership and ad-hoc instance tags) are combined in production,
// per spec §9's first Open Question: if an instance matches both schemas
// at once it is counted twice. That double-counting is preserved here
// exactly as observed rather than de-duplicated, since the intended
// behavior is explicitly unclear in the source material. A warning is
// logged whenever more than one counter is configured, so an operator who
// enables both schemas notices the overlap risk.
type SummedRunningNodeCounter struct {
	Counters []RunningNodeCounter
}

func (s *SummedRunningNodeCounter) CountRunning(ctx context.Context) (int, error) {
	if len(s.Counters) > 1 {
		log.Warn("multiple running-node counters configured; matching instances are counted once per counter")
	}
	total := 0
	for _, c := range s.Counters {
		n, err := c.CountRunning(ctx)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
