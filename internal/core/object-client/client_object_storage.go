package objectclient

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	cfg "github.com/markdave123-py/docingest/internal/config"
	"github.com/markdave123-py/docingest/internal/core"
	"github.com/markdave123-py/docingest/internal/logger"
)

type downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Client mirrors a bucket prefix with a local directory. Objects whose
// size already matches the other side are skipped.
type S3Client struct {
	list       s3.ListObjectsV2APIClient
	downloader downloader
	uploader   uploader
	bucket     string
	log        logger.Logger
}

var _ core.ObjectClient = (*S3Client)(nil)

func NewS3Client(ctx context.Context, cfg *cfg.Config, log logger.Logger) (*S3Client, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	log.Info("s3 client ready", "bucket", cfg.BucketName, "region", cfg.AwsRegion, "endpoint", cfg.S3Endpoint)

	return newS3Client(client, manager.NewDownloader(client), manager.NewUploader(client), cfg.BucketName, log), nil
}

func newS3Client(list s3.ListObjectsV2APIClient, dl downloader, ul uploader, bucket string, log logger.Logger) *S3Client {
	if log == nil {
		log = logger.Nop()
	}
	return &S3Client{list: list, downloader: dl, uploader: ul, bucket: bucket, log: log}
}

// remoteSizes lists every object under prefix keyed by object key.
func (c *S3Client) remoteSizes(ctx context.Context, prefix string) (map[string]int64, error) {
	out := make(map[string]int64)
	p := s3.NewListObjectsV2Paginator(c.list, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			out[key] = aws.ToInt64(obj.Size)
		}
	}
	return out, nil
}

// DownloadPrefix copies every object under prefix into dir, keeping the key
// layout below the prefix.
func (c *S3Client) DownloadPrefix(ctx context.Context, prefix, dir string) (core.SyncReport, error) {
	var rep core.SyncReport
	objects, err := c.remoteSizes(ctx, prefix)
	if err != nil {
		return rep, err
	}

	for key, size := range objects {
		rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
		if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
			c.log.Warn("skip object outside target", "key", key)
			rep.Skipped++
			continue
		}
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if fi, err := os.Stat(dst); err == nil && fi.Size() == size {
			rep.Skipped++
			continue
		}
		n, err := c.downloadOne(ctx, key, dst)
		if err != nil {
			return rep, err
		}
		rep.Transferred++
		rep.Bytes += n
	}
	c.log.Info("s3 download done", "prefix", prefix, "transferred", rep.Transferred, "skipped", rep.Skipped, "bytes", rep.Bytes)
	return rep, nil
}

func (c *S3Client) downloadOne(ctx context.Context, key, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", key, err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	defer f.Close()

	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	n, err := c.downloader.Download(ctxGet, f, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("s3 get failed for %s: %w", key, err)
	}
	return n, nil
}

// UploadDir uploads every regular file below dir to prefix.
func (c *S3Client) UploadDir(ctx context.Context, dir, prefix string) (core.SyncReport, error) {
	var rep core.SyncReport
	objects, err := c.remoteSizes(ctx, prefix)
	if err != nil {
		return rep, err
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if size, ok := objects[key]; ok && size == fi.Size() {
			rep.Skipped++
			return nil
		}
		if err := c.uploadOne(ctx, p, key); err != nil {
			return err
		}
		rep.Transferred++
		rep.Bytes += fi.Size()
		return nil
	})
	if err != nil {
		return rep, err
	}
	c.log.Info("s3 upload done", "prefix", prefix, "transferred", rep.Transferred, "skipped", rep.Skipped, "bytes", rep.Bytes)
	return rep, nil
}

func (c *S3Client) uploadOne(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	contentType := "application/octet-stream"
	if m, err := mimetype.DetectFile(src); err == nil {
		contentType = m.String()
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	_, err = c.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed for %s: %w", key, err)
	}
	return nil
}
