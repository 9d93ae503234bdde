package snapshotstore

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
)

// SpacesConfig configures a DigitalOcean Spaces-backed store, which speaks
// the S3 API under a region-shaped endpoint override.
type SpacesConfig struct {
	Endpoint  string
	Bucket    string
	Key       string
	AccessKey string
	SecretKey string
}

// NewSpacesStore builds an S3Store pointed at a DigitalOcean Spaces
// endpoint. Spaces requires a region name even though it ignores it, so
// us-east-1 is used as a placeholder, following the teacher's
// DigitalOceanSnapshotter.
func NewSpacesStore(cfg *SpacesConfig) (*S3Store, error) {
	awsCfg := &aws.Config{
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		Endpoint:    aws.String(cfg.Endpoint),
		Region:      aws.String("us-east-1"),
	}
	return newS3Store(awsCfg, cfg.Bucket, cfg.Key)
}
