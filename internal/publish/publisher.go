package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"weather-etl-pipeline/internal/config"
	"weather-etl-pipeline/internal/logging"
)

// ObjectPutter is the slice of the S3 API the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// keyTimeLayout namespaces uploads by date with an upload timestamp, so
// re-running after a partial failure re-uploads under new keys
// (at-least-once, never overwriting a previous upload in place).
const keyTimeLayout = "2006/01/02_150405"

// Publisher copies clean datasets to remote object storage. Per-file
// upload is fail-fast: a failed upload aborts the remaining files, unlike
// the reconciler's per-city isolation — a partially published run must not
// complete silently.
type Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

func New(client ObjectPutter, bucket, prefix string, logger *logging.Logger) *Publisher {
	return &Publisher{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// NewFromConfig builds a Publisher backed by a real S3 client from the
// validated storage config.
func NewFromConfig(ctx context.Context, sc *config.StorageConfig, logger *logging.Logger) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(sc.AWS.RegionName),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			sc.AWS.AccessKeyID, sc.AWS.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("publish: load aws config: %w", err)
	}
	return New(s3.NewFromConfig(awsCfg), sc.S3.BucketName, sc.S3.CleanPrefix, logger), nil
}

// Result describes one publish-stage invocation.
type Result struct {
	Uploaded []string // s3://bucket/key URIs, in upload order
}

// Run uploads the CSV file at path, or every CSV file in the directory at
// path, and returns the remote locations written. The first failed upload
// aborts the invocation; already-uploaded files stay in Result.
func (p *Publisher) Run(ctx context.Context, path string) (*Result, error) {
	files, err := p.resolveFiles(path)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, file := range files {
		uri, err := p.uploadOne(ctx, file)
		if err != nil {
			p.logger.Error("[publish] upload failed for %s: %v", file, err)
			return res, fmt.Errorf("upload %q: %w", file, err)
		}
		p.logger.Info("[publish] uploaded %s", uri)
		res.Uploaded = append(res.Uploaded, uri)
	}

	p.logger.Info("[publish] uploaded %d file(s)", len(res.Uploaded))
	return res, nil
}

// resolveFiles treats a single file and a directory of files uniformly,
// producing the ordered list of CSVs to upload.
func (p *Publisher) resolveFiles(path string) ([]string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("publish: path %q: %w", path, err)
	}

	if !st.IsDir() {
		if !strings.HasSuffix(strings.ToLower(path), ".csv") {
			return nil, fmt.Errorf("publish: expected a .csv file, got %q", path)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("publish: list %q: %w", path, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("publish: no CSV files found in %q", path)
	}
	return files, nil
}

func (p *Publisher) uploadOne(ctx context.Context, path string) (string, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s%s_%s", p.prefix, p.now().Format(keyTimeLayout), filepath.Base(path))

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}
