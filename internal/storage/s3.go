package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3 stores objects in an AWS S3 bucket. Uploads are encrypted at rest with
// AES256.
type S3 struct {
	s3     *s3.S3
	bucket string
}

// NewS3 builds an S3-backed store using the default credential chain.
func NewS3(region, bucket string) (*S3, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3{s3: s3.New(sess), bucket: bucket}, nil
}

func (s *S3) Put(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string, meta map[string]string) error {
	var metadata map[string]*string
	if len(meta) > 0 {
		metadata = make(map[string]*string, len(meta))
		for k, v := range meta {
			metadata[k] = aws.String(v)
		}
	}

	_, err := s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 r,
		ContentLength:        aws.Int64(size),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: aws.String("AES256"),
		Metadata:             metadata,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *S3) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	req, _ := s.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return url, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	// S3 deletes are silently idempotent, so probe first to keep the
	// not-found contract.
	_, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
			return ErrObjectNotExist
		}
		return fmt.Errorf("head object %s: %w", key, err)
	}

	if _, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:     aws.StringValue(obj.Key),
				Size:    aws.Int64Value(obj.Size),
				Created: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
	}
	return objects, nil
}
