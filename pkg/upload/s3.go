package upload

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/difftestoor/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPrefix = "difftestoor"
	defaultRegion = "us-east-1"
	preflightKey  = ".difftestoor-write-test"

	// uploadConcurrency bounds parallel PutObject calls for one run.
	uploadConcurrency = 4
)

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader from the given configuration.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) (Uploader, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}, nil
}

func newS3Client(cfg *config.S3UploadConfig) *s3.Client {
	return s3.New(s3.Options{}, func(o *s3.Options) {
		o.Region = defaultRegion
		if cfg.Region != "" {
			o.Region = cfg.Region
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		o.UsePathStyle = cfg.ForcePathStyle

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})
}

// Preflight verifies S3 connectivity by writing and removing a test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	key := u.basePrefix() + "/" + preflightKey
	content := fmt.Sprintf("difftestoor write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s/%s: %w", u.cfg.Bucket, key, err)
	}

	if _, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		u.log.WithError(err).WithField("key", key).Warn("Failed to remove preflight object")
	}

	return nil
}

// Upload uploads all files of runDir to S3 under the run's prefix.
func (u *s3Uploader) Upload(ctx context.Context, runDir string) (string, error) {
	prefix := u.resolvePrefix(filepath.Base(runDir))

	var files []string

	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking directory %s: %w", runDir, err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	for _, path := range files {
		g.Go(func() error {
			relPath, err := filepath.Rel(runDir, path)
			if err != nil {
				return fmt.Errorf("computing relative path: %w", err)
			}

			key := prefix + "/" + filepath.ToSlash(relPath)

			if err := u.uploadFile(gCtx, path, key); err != nil {
				return fmt.Errorf("uploading %s: %w", relPath, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	location := fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, prefix)

	u.log.WithFields(logrus.Fields{
		"files":    len(files),
		"location": location,
	}).Info("Upload completed")

	return location, nil
}

// uploadFile uploads a single file to S3.
func (u *s3Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(detectContentType(localPath)),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	if u.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(u.cfg.ACL)
	}

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading file")

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

func (u *s3Uploader) basePrefix() string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}

	return prefix
}

// resolvePrefix builds the S3 key prefix for a run directory.
func (u *s3Uploader) resolvePrefix(runDirName string) string {
	return u.basePrefix() + "/runs/" + runDirName
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	switch filepath.Ext(path) {
	case "":
		return "application/octet-stream"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".yaml", ".yml":
		return "application/yaml"
	}

	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}
