// Package s3 stores backup streams and indexes in an S3 bucket. It works
// against AWS and S3-compatible endpoints such as MinIO or Ceph RGW.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"backer/internal/backup"
	"backer/internal/logging"
)

// Options configures access to one bucket.
type Options struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	PartSizeMiB    int
}

// Storage lays out objects under the configured key prefix:
//
//	<prefix>/<version>/fs/<fsguid>/data/<id>/<n>.data
//	<prefix>/<version>/fs/<fsguid>/index/<id>/<name>.index
type Storage struct {
	client   *awss3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   *slog.Logger
}

// New constructs an S3 store. Credentials fall back to the default AWS
// provider chain when no static keys are configured.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Storage, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	partSize := int64(opts.PartSizeMiB) << 20
	if partSize < manager.MinUploadPartSize {
		partSize = manager.DefaultUploadPartSize
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	return &Storage{
		client:   client,
		uploader: uploader,
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
		logger:   logging.NewComponentLogger(logger, "s3"),
	}, nil
}

func (s *Storage) join(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

func (s *Storage) dataKey(key backup.Key) string {
	return s.join(backup.FormatVersion, "fs", key.FSGUID, "data", key.ID, fmt.Sprintf("%d.data", key.N))
}

func (s *Storage) indexKey(fsguid, id, name string) string {
	return s.join(backup.FormatVersion, "fs", fsguid, "index", id, name+".index")
}

// PutData uploads the stream for one snapshot. Large streams go up as
// multipart uploads sized by the configured part size.
func (s *Storage) PutData(ctx context.Context, key backup.Key, r io.Reader) error {
	objectKey := s.dataKey(key)
	if _, err := s.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   r,
	}); err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	s.logger.Debug("data uploaded",
		logging.String("key", objectKey),
		logging.String(logging.FieldSeries, key.SID),
	)
	return nil
}

// GetData copies the stream for one snapshot into w.
func (s *Storage) GetData(ctx context.Context, key backup.Key, w io.Writer) error {
	objectKey := s.dataKey(key)
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", objectKey, err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("download %s: %w", objectKey, err)
	}
	return nil
}

// PutIndex writes an index document.
func (s *Storage) PutIndex(ctx context.Context, fsguid, id, name string, data []byte) error {
	objectKey := s.indexKey(fsguid, id, name)
	if _, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}

// GetIndex reads an index document. Missing documents report
// backup.ErrNoIndex.
func (s *Storage) GetIndex(ctx context.Context, fsguid, id, name string) ([]byte, error) {
	objectKey := s.indexKey(fsguid, id, name)
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, backup.ErrNoIndex
		}
		return nil, fmt.Errorf("download %s: %w", objectKey, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", objectKey, err)
	}
	return data, nil
}

// IndexPath returns the object key PutIndex writes to.
func (s *Storage) IndexPath(fsguid, id, name string) string {
	return s.indexKey(fsguid, id, name)
}

// Ping verifies the bucket is reachable with the configured credentials.
func (s *Storage) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// List walks the bucket and returns the current metadata for every backup,
// ordered by filesystem guid then backup id.
func (s *Storage) List(ctx context.Context) ([]backup.Meta, error) {
	fsguids, err := s.listChildren(ctx, s.join(backup.FormatVersion, "fs")+"/")
	if err != nil {
		return nil, err
	}

	var metas []backup.Meta
	for _, fsguid := range fsguids {
		ids, err := s.listChildren(ctx, s.join(backup.FormatVersion, "fs", fsguid, "index")+"/")
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			data, err := s.GetIndex(ctx, fsguid, id, "current")
			if err != nil {
				if errors.Is(err, backup.ErrNoIndex) {
					continue
				}
				return nil, err
			}
			entry, err := backup.DecodeIndexEntry(data)
			if err != nil {
				return nil, err
			}
			metas = append(metas, entry.Meta)
		}
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Key.FSGUID != metas[j].Key.FSGUID {
			return metas[i].Key.FSGUID < metas[j].Key.FSGUID
		}
		return metas[i].Key.ID < metas[j].Key.ID
	})
	return metas, nil
}

// listChildren returns the immediate child names under prefix using
// delimiter listings, following continuation tokens.
func (s *Storage) listChildren(ctx context.Context, prefix string) ([]string, error) {
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	var children []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			child := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
			if idx := strings.LastIndexByte(child, '/'); idx >= 0 {
				child = child[idx+1:]
			}
			if child != "" {
				children = append(children, child)
			}
		}
	}
	return children, nil
}
