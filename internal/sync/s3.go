package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/akyairhashvil/tally/internal/config"
)

// s3API is the slice of the S3 client the remote uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ s3API = (*s3.Client)(nil)

// S3Remote keeps mirror objects in an S3 bucket under an optional prefix.
type S3Remote struct {
	api    s3API
	bucket string
	prefix string
}

var _ RemoteStore = (*S3Remote)(nil)

// NewS3Remote builds the remote from the sync configuration using the
// default AWS credential chain. Endpoint and PathStyle cover non-AWS
// stores like MinIO.
func NewS3Remote(ctx context.Context, cfg config.SyncConfig) (*S3Remote, error) {
	if cfg.Bucket == "" {
		return nil, wrapSyncErr("configure", "", errors.New("bucket is empty"))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, wrapSyncErr("configure", "", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Remote{api: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// List returns every object under the kind directory, keys relative to
// the mirror root. Listings paginate until exhausted.
func (r *S3Remote) List(ctx context.Context, kind string) ([]ObjectInfo, error) {
	prefix := r.fullKey(kind) + "/"

	var out []ObjectInfo
	var token *string
	for {
		page, err := r.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(r.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, wrapSyncErr("list", kind, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Key: r.relKey(aws.ToString(obj.Key))}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.UTC()
			}
			out = append(out, info)
		}
		if page.NextContinuationToken == nil {
			return out, nil
		}
		token = page.NextContinuationToken
	}
}

func (r *S3Remote) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.fullKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, wrapSyncErr("get", key, ErrKeyNotFound)
		}
		return nil, wrapSyncErr("get", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, wrapSyncErr("get", key, err)
	}
	return data, nil
}

func (r *S3Remote) Put(ctx context.Context, key string, data []byte) error {
	_, err := r.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.fullKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return wrapSyncErr("put", key, err)
}

// Delete removes an object. Deleting a missing key is not an error; S3
// reports success either way.
func (r *S3Remote) Delete(ctx context.Context, key string) error {
	_, err := r.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.fullKey(key)),
	})
	return wrapSyncErr("delete", key, err)
}

func (r *S3Remote) fullKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return path.Join(r.prefix, key)
}

func (r *S3Remote) relKey(full string) string {
	if r.prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, r.prefix+"/")
}
