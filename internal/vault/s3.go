package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"snapkeep/internal/snap"
)

// s3API is the subset of the S3 client used by S3Vault.
type s3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures an S3Vault.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the S3 endpoint, for S3-compatible stores such as MinIO.
	// Path-style addressing is used when it is set.
	Endpoint string

	// AccessKeyID and SecretAccessKey select static credentials. When empty the
	// default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Vault stores archives as objects in an S3 bucket:
//
//	s3://<bucket>/<prefix>/<repository>/<repository>_<yyyyMMdd_HHmmss>.zip
type S3Vault struct {
	client   s3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Vault creates an S3Vault using the default AWS config chain, adjusted by opts.
func NewS3Vault(ctx context.Context, opts S3Options) (*S3Vault, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3VaultWithClient(client, opts.Bucket, opts.Prefix), nil
}

func newS3VaultWithClient(client s3API, bucket, prefix string) *S3Vault {
	return &S3Vault{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

func (v *S3Vault) repositoryPrefix(repository string) string {
	return path.Join(v.prefix, repository) + "/"
}

func (v *S3Vault) key(repository, archiveID string) string {
	return v.repositoryPrefix(repository) + archiveID + archiveExt
}

// Location returns the S3 URL prefix of the repository's archives.
func (v *S3Vault) Location(repository string) string {
	return "s3://" + v.bucket + "/" + v.repositoryPrefix(repository)
}

// PutArchive uploads a new archive. An existing object with the same key is
// an error.
func (v *S3Vault) PutArchive(repository, archiveID string, r io.Reader, size int64) error {
	ctx := context.Background()
	key := v.key(repository, archiveID)

	exists, err := v.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("archive already exists: %s", archiveID)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(v.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (v *S3Vault) exists(ctx context.Context, key string) (bool, error) {
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", key, err)
}

// GetArchive downloads the archive and writes it to w.
func (v *S3Vault) GetArchive(repository, archiveID string, w io.Writer) error {
	key := v.key(repository, archiveID)
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("archive not found: %s", archiveID)
		}
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

// ListArchives lists the archive objects under the repository's prefix.
// S3 has no directories, so an empty prefix counts as a missing location.
func (v *S3Vault) ListArchives(repository string) ([]string, error) {
	prefix := v.repositoryPrefix(repository)
	paginator := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(prefix),
	})

	var ids []string
	seen := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", v.Location(repository), err)
		}
		for _, obj := range page.Contents {
			seen++
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(name, "/") || !strings.HasPrefix(name, repository+"_") || !strings.HasSuffix(name, archiveExt) {
				continue
			}
			ids = append(ids, strings.TrimSuffix(name, archiveExt))
		}
	}

	if seen == 0 {
		return nil, fmt.Errorf("%w: %s", snap.ErrNoBackupLocation, v.Location(repository))
	}
	return ids, nil
}

// ValidateSetup checks that the bucket exists and is reachable with the
// configured credentials.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

// Compile-time check that S3Vault implements snap.Vault interface
var _ snap.Vault = (*S3Vault)(nil)
