// Package archive keeps a copy of the raw files a documentation build
// produced, either on local disk or in an S3 bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gren-lang/package-registry/internal/models"
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Config selects the archive destination. S3 wins when a bucket is set; an
// empty Config disables archiving.
type Config struct {
	Dir         string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Archive uploads build artifacts under <name>/<version>/.
type Archive struct {
	up uploader
}

// New chooses an uploader for cfg. The returned Archive is never nil.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.S3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Archive{up: &s3Uploader{client: client, bucket: cfg.S3Bucket}}, nil
	}
	if cfg.Dir != "" {
		return &Archive{up: &localUploader{baseDir: cfg.Dir}}, nil
	}
	return &Archive{}, nil
}

func newS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.S3Endpoint,
					HostnameImmutable: cfg.S3PathStyle,
					SigningRegion:     cfg.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}

// Enabled reports whether Store uploads anything.
func (a *Archive) Enabled() bool {
	return a != nil && a.up != nil
}

// Store uploads the manifest, docs and readme of one package version and
// returns their locations. It is a no-op when archiving is disabled.
func (a *Archive) Store(ctx context.Context, name, version string, artifact *models.BuildArtifact) ([]string, error) {
	if !a.Enabled() {
		return nil, nil
	}
	if artifact == nil {
		return nil, errors.New("archive: nil artifact")
	}

	files := []struct {
		file        string
		body        []byte
		contentType string
	}{
		{"gren.json", artifact.RawManifest, "application/json"},
		{"docs.json", artifact.RawDocs, "application/json"},
		{"README.md", []byte(artifact.Readme), "text/markdown; charset=utf-8"},
	}

	locations := make([]string, 0, len(files))
	for _, f := range files {
		key := sanitizeKey(path.Join(name, version, f.file))
		loc, err := a.up.Upload(ctx, key, f.body, f.contentType)
		if err != nil {
			return locations, fmt.Errorf("upload %s: %w", key, err)
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

func sanitizeKey(key string) string {
	key = path.Clean(key)
	key = strings.TrimPrefix(key, "/")
	key = strings.TrimPrefix(key, "./")
	for strings.HasPrefix(key, "../") {
		key = strings.TrimPrefix(key, "../")
	}
	return key
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	p := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return p, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
