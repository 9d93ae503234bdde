package peers

import (
	"context"
	"strings"

	meta "github.com/digitalocean/go-metadata"
	"github.com/digitalocean/godo"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

// doTokenSource adapts a static API token to the oauth2.TokenSource
// interface godo requires, the same shape as the teacher's
// digitalocean.Config.Token.
type doTokenSource struct {
	accessToken string
}

func (t *doTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: t.accessToken}, nil
}

// DigitalOceanNodeCounter counts running nodes by matching a droplet tag,
// the DigitalOcean equivalent of the two AWS schemas in running_aws.go.
type DigitalOceanNodeCounter struct {
	Client *godo.Client
	Tag    string

	// ClusterName, when set, is also required as one of a candidate
	// droplet's own tags before it counts, following kops's
	// TagKubernetesClusterNamePrefix convention of tagging every
	// cluster-owned DigitalOcean resource with the cluster's name.
	ClusterName string
}

// NewDigitalOceanNodeCounter builds a counter authenticated with a
// DigitalOcean API access token, following the teacher's
// digitalocean.NewClient pattern.
func NewDigitalOceanNodeCounter(accessToken, tag, clusterName string) *DigitalOceanNodeCounter {
	oauthClient := oauth2.NewClient(context.TODO(), &doTokenSource{accessToken: accessToken})
	return &DigitalOceanNodeCounter{
		Client:      godo.NewClient(oauthClient),
		Tag:         tag,
		ClusterName: clusterName,
	}
}

// CountRunning returns the number of droplets tagged with the configured
// tag (and, if set, ClusterName), excluding the local droplet itself,
// matching the self-exclusion the teacher's GetAddrsByTag performs before
// returning peer addresses.
func (c *DigitalOceanNodeCounter) CountRunning(ctx context.Context) (int, error) {
	self, err := meta.NewClient().Metadata()
	if err != nil {
		return 0, errors.Wrap(err, "cannot read droplet metadata")
	}
	tag := c.Tag
	if tag == "" {
		for _, t := range self.Tags {
			if strings.HasPrefix(t, "etcdadm") {
				tag = t
				break
			}
		}
	}
	droplets, _, err := c.Client.Droplets.ListByTag(ctx, tag, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot list droplets by tag %#v", tag)
	}
	count := 0
	for _, d := range droplets {
		if d.ID == self.DropletID {
			continue
		}
		if c.ClusterName != "" && !hasTag(d.Tags, c.ClusterName) {
			continue
		}
		count++
	}
	log.Debugf("droplet tag %s matches %d running nodes", tag, count)
	return count, nil
}

func hasTag(tags []string, name string) bool {
	for _, t := range tags {
		if t == name {
			return true
		}
	}
	return false
}
