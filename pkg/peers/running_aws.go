package peers

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/awsconfig"
	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

// AmazonAutoScalingNodeCounter counts running nodes by the size of the
// Auto Scaling Group the local instance belongs to. This is one of two
// AWS tag schemas spec.md §9's first Open Question discusses; unlike the
// teacher's AmazonAutoScalingPeerGetter, which collected peer addresses,
// this only needs the instance count.
type AmazonAutoScalingNodeCounter struct {
	ASG *autoscaling.AutoScaling
	EC2 *ec2metadata.EC2Metadata

	// ClusterName, when set, is checked against the ASG's own
	// "KubernetesCluster" tag (the legacy kube-up/kops AWS convention for
	// scoping cloud resources to a cluster) before counting, so a
	// misconfigured or shared ASG can't silently count another cluster's
	// nodes toward this one's running_count.
	ClusterName string
}

// NewAmazonAutoScalingNodeCounter builds a counter using the ambient AWS
// session and region discovered from EC2 instance metadata, following
// the teacher's internal/provider/aws.NewConfig pattern.
func NewAmazonAutoScalingNodeCounter(clusterName string) (*AmazonAutoScalingNodeCounter, error) {
	cfg, err := awsconfig.New()
	if err != nil {
		return nil, err
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create AWS session")
	}
	return &AmazonAutoScalingNodeCounter{
		ASG:         autoscaling.New(sess, cfg),
		EC2:         ec2metadata.New(sess),
		ClusterName: clusterName,
	}, nil
}

func (c *AmazonAutoScalingNodeCounter) instanceID() (string, error) {
	doc, err := c.EC2.GetInstanceIdentityDocument()
	if err != nil {
		return "", errors.Wrap(err, "cannot read EC2 instance identity document")
	}
	return doc.InstanceID, nil
}

func (c *AmazonAutoScalingNodeCounter) autoScalingGroupName(ctx context.Context, instanceID string) (string, error) {
	resp, err := c.ASG.DescribeAutoScalingInstancesWithContext(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
		InstanceIds: []*string{aws.String(instanceID)},
	})
	if err != nil {
		return "", err
	}
	for _, i := range resp.AutoScalingInstances {
		return aws.StringValue(i.AutoScalingGroupName), nil
	}
	return "", errors.Errorf("cannot find autoscaling group for instance: %#v", instanceID)
}

// CountRunning returns the number of InService instances in the local
// instance's Auto Scaling Group.
func (c *AmazonAutoScalingNodeCounter) CountRunning(ctx context.Context) (int, error) {
	instanceID, err := c.instanceID()
	if err != nil {
		return 0, err
	}
	name, err := c.autoScalingGroupName(ctx, instanceID)
	if err != nil {
		return 0, err
	}
	resp, err := c.ASG.DescribeAutoScalingGroupsWithContext(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []*string{aws.String(name)},
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, group := range resp.AutoScalingGroups {
		if c.ClusterName != "" && !hasClusterTag(group.Tags, c.ClusterName) {
			return 0, errors.Errorf("autoscaling group %s is not tagged KubernetesCluster=%s", name, c.ClusterName)
		}
		for _, instance := range group.Instances {
			if aws.StringValue(instance.LifecycleState) == autoscaling.LifecycleStateInService {
				count++
			}
		}
	}
	log.Debugf("autoscaling group %s has %d running instances", name, count)
	return count, nil
}

func hasClusterTag(tags []*autoscaling.TagDescription, clusterName string) bool {
	for _, t := range tags {
		if aws.StringValue(t.Key) == "KubernetesCluster" && aws.StringValue(t.Value) == clusterName {
			return true
		}
	}
	return false
}

// AmazonInstanceTagNodeCounter counts running nodes by matching an
// ad-hoc EC2 instance tag, the second of the two schemas spec.md §9's
// first Open Question discusses. It is independent of ASG membership,
// hence the deliberate double-counting risk documented on
// SummedRunningNodeCounter when both are configured.
type AmazonInstanceTagNodeCounter struct {
	EC2      *ec2.EC2
	TagName  string
	TagValue string

	// ClusterName, when set, adds a "tag:KubernetesCluster" filter
	// alongside TagName/TagValue, so the ad-hoc tag schema can't match
	// instances belonging to a different cluster in the same account.
	ClusterName string
}

// NewAmazonInstanceTagNodeCounter builds a counter using the ambient AWS
// session and region discovered from EC2 instance metadata.
func NewAmazonInstanceTagNodeCounter(tagName, tagValue, clusterName string) (*AmazonInstanceTagNodeCounter, error) {
	cfg, err := awsconfig.New()
	if err != nil {
		return nil, err
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create AWS session")
	}
	return &AmazonInstanceTagNodeCounter{
		EC2:         ec2.New(sess, cfg),
		TagName:     tagName,
		TagValue:    tagValue,
		ClusterName: clusterName,
	}, nil
}

// CountRunning returns the number of running EC2 instances carrying the
// configured tag name/value pair, scoped to ClusterName if set.
func (c *AmazonInstanceTagNodeCounter) CountRunning(ctx context.Context) (int, error) {
	filters := []*ec2.Filter{
		{
			Name:   aws.String("tag:" + c.TagName),
			Values: []*string{aws.String(c.TagValue)},
		},
		{
			Name:   aws.String("instance-state-name"),
			Values: []*string{aws.String("running")},
		},
	}
	if c.ClusterName != "" {
		filters = append(filters, &ec2.Filter{
			Name:   aws.String("tag:KubernetesCluster"),
			Values: []*string{aws.String(c.ClusterName)},
		})
	}
	resp, err := c.EC2.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		Filters: filters,
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, reservation := range resp.Reservations {
		count += len(reservation.Instances)
	}
	log.Debugf("instance tag %s=%s matches %d running instances", c.TagName, c.TagValue, count)
	return count, nil
}
