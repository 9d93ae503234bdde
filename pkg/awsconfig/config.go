// Package awsconfig builds *aws.Config values from ambient EC2 instance
// metadata, optionally assuming an IAM role via STS. It backs every AWS
// SDK client the agent dials: the running-node probe, S3 snapshot
// storage, and anything else reading the instance's region/credentials.
package awsconfig

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

// New returns an *aws.Config scoped to the region reported by EC2 instance
// metadata, relying on the SDK's default credential chain.
func New() (*aws.Config, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}
	doc, err := ec2metadata.New(sess).GetInstanceIdentityDocument()
	if err != nil {
		return nil, err
	}
	cfg := &aws.Config{Region: aws.String(doc.Region)}
	log.Debugf("%#v", cfg)
	return cfg, nil
}

func roleARNFromInstanceMetadata(sess *session.Session) (string, error) {
	info, err := ec2metadata.New(sess).IAMInfo()
	if err != nil {
		return "", err
	}
	if info.InstanceProfileArn == "" {
		return "", errors.New("IAM instance profile not attached")
	}
	parsed, err := arn.Parse(info.InstanceProfileArn)
	if err != nil {
		return "", errors.Wrapf(err, "cannot parse ARN: %#v", info.InstanceProfileArn)
	}
	instanceProfileName := strings.Replace(parsed.Resource, "instance-profile/", "", 1)

	resp, err := iam.New(sess).GetInstanceProfileWithContext(context.TODO(), &iam.GetInstanceProfileInput{
		InstanceProfileName: aws.String(instanceProfileName),
	})
	if err != nil {
		return "", err
	}
	if len(resp.InstanceProfile.Roles) > 1 {
		return "", errors.New("only 1 Role-InstanceProfile association is supported")
	}
	for _, role := range resp.InstanceProfile.Roles {
		return aws.StringValue(role.Arn), nil
	}
	return "", errors.Errorf("cannot find instance profile: %#v", instanceProfileName)
}

// NewConfig returns New()'s config when name is empty, or assumes the IAM
// role named by name (scoped to an STS role session) when set. A few
// environments deny sts:AssumeRole for a role already attached to the
// instance profile; in that case it falls back to the instance's own
// credentials rather than failing outright.
func NewConfig(name string) (*aws.Config, error) {
	cfg, err := New()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return cfg, nil
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	roleARN, err := roleARNFromInstanceMetadata(sess)
	if err != nil {
		return nil, err
	}
	p := &stscreds.AssumeRoleProvider{
		Client:          sts.New(sess),
		RoleSessionName: name,
		RoleARN:         roleARN,
		Duration:        15 * time.Minute,
	}
	if _, err := p.Retrieve(); err != nil {
		if strings.Contains(err.Error(), "Access Denied") {
			cfg.Credentials = ec2rolecreds.NewCredentials(sess)
			return cfg, nil
		}
		return cfg, errors.Wrap(err, "assume AWS STS credentials")
	}
	cfg.Credentials = credentials.NewCredentials(p)
	return cfg, nil
}
