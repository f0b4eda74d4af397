package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Mirror uploads a run's artifacts to S3 under
// <prefix>/<run_id>/<relative path>, keyed by path rather than content
// hash since the mirror exists to let a dashboard browse a run
// remotely, not to deduplicate blobs.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror loads the default AWS config for region and constructs a client.
func NewS3Mirror(ctx context.Context, bucket, region, prefix string) (*S3Mirror, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}
	return &S3Mirror{
		client: s3.NewFromConfig(awsCfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// MirrorFile uploads a single run-relative file.
func (m *S3Mirror) MirrorFile(ctx context.Context, r *Run, localPath string) error {
	relative, err := filepath.Rel(r.RootDir, localPath)
	if err != nil {
		return fmt.Errorf("store: mirror %s: not under run root: %w", localPath, err)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("store: mirror: read %s: %w", localPath, err)
	}

	key := m.key(r.RunID, relative)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("store: mirror: put %s: %w", key, err)
	}
	return nil
}

// MirrorRun walks a run's entire directory tree and uploads every
// regular file; failures are collected but do not stop the walk since
// a remote mirror outage must never fail a pipeline run.
func (m *S3Mirror) MirrorRun(ctx context.Context, r *Run) []error {
	var errs []error
	_ = filepath.WalkDir(r.RootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if mirrErr := m.MirrorFile(ctx, r, path); mirrErr != nil {
			errs = append(errs, mirrErr)
		}
		return nil
	})
	return errs
}

func (m *S3Mirror) key(runID, relative string) string {
	relative = filepath.ToSlash(relative)
	if m.prefix == "" {
		return fmt.Sprintf("%s/%s", runID, relative)
	}
	return fmt.Sprintf("%s/%s/%s", m.prefix, runID, relative)
}
