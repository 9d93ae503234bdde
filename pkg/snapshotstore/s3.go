package snapshotstore

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/awsconfig"
)

// S3Config configures an S3Store.
type S3Config struct {
	RoleSessionName string
	Bucket          string
	Key             string
}

// S3Store is the production AWS backend, uploading and downloading a
// snapshot blob through s3manager.
type S3Store struct {
	*s3.S3
	*s3manager.Downloader
	*s3manager.Uploader

	bucket, key string
}

// NewS3Store builds an S3Store authenticated via the ambient EC2 instance
// role, optionally assumed through cfg.RoleSessionName.
func NewS3Store(cfg *S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.NewConfig(cfg.RoleSessionName)
	if err != nil {
		return nil, err
	}
	return newS3Store(awsCfg, cfg.Bucket, cfg.Key)
}

func newS3Store(cfg *aws.Config, bucket, key string) (*S3Store, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	s := &S3Store{
		S3:         s3.New(sess),
		Downloader: s3manager.NewDownloader(sess),
		Uploader:   s3manager.NewUploader(sess),
		bucket:     bucket,
		key:        key,
	}
	if err := s.checkBucket(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *S3Store) checkBucket() error {
	req, _ := s.HeadBucketRequest(&s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	err := req.Send()
	if err == nil {
		return nil
	}
	reqErr, ok := err.(awserr.RequestFailure)
	if !ok {
		return errors.Wrapf(err, "bucket could not be accessed: %#v", s.bucket)
	}
	switch reqErr.StatusCode() {
	case http.StatusNotFound:
		return errors.Errorf("bucket %#v does not exist", s.bucket)
	case http.StatusForbidden:
		return errors.Errorf("access to bucket %#v forbidden", s.bucket)
	default:
		return errors.Wrapf(reqErr, "bucket could not be accessed: %#v", s.bucket)
	}
}

func (s *S3Store) Exists() (bool, error) {
	_, err := s.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err == nil {
		return true, nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (s *S3Store) Download(w io.WriterAt) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	_, err := s.Downloader.DownloadWithContext(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return errors.Wrapf(err, "cannot download s3://%s/%s", s.bucket, s.key)
	}
	return nil
}

func (s *S3Store) Upload(r io.ReadCloser) error {
	defer r.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	_, err := s.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Body:   r,
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return errors.Wrapf(err, "cannot upload s3://%s/%s", s.bucket, s.key)
	}
	return nil
}
