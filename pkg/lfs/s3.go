package lfs

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go/aws"             //nolint:staticcheck
	"github.com/aws/aws-sdk-go/aws/awserr"      //nolint:staticcheck
	"github.com/aws/aws-sdk-go/aws/credentials" //nolint:staticcheck
	"github.com/aws/aws-sdk-go/aws/session"     //nolint:staticcheck
	"github.com/aws/aws-sdk-go/service/s3"      //nolint:staticcheck
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3 is a bucket whose object keys are the LFS oids, optionally below a prefix.
type S3 struct {
	s3       s3iface.S3API
	basePath string
	bucket   string
}

func NewS3(basePath, endpoint, accessKey, secretKey, bucket string, forcePathStyle bool) *S3 {
	sess := session.Must(session.NewSession(&aws.Config{
		Endpoint:         &endpoint,
		Region:           aws.String("us-east-1"),
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		S3ForcePathStyle: &forcePathStyle,
	}))

	return NewS3WithClient(s3.New(sess), basePath, bucket)
}

// NewS3WithClient creates an S3 bucket on top of an existing client.
func NewS3WithClient(client s3iface.S3API, basePath, bucket string) *S3 {
	return &S3{
		s3:       client,
		basePath: basePath,
		bucket:   bucket,
	}
}

func (s *S3) key(oid string) (string, error) {
	if err := validateOid(oid); err != nil {
		return "", err
	}
	return path.Join(s.basePath, oid), nil
}

// Get reads the object stored under oid.
func (s *S3) Get(ctx context.Context, oid string, opts GetOptions) (*Object, error) {
	key, err := s.key(oid)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if opts.Range != "" {
		input.Range = aws.String(opts.Range)
	}

	output, err := s.s3.GetObjectWithContext(ctx, input)
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}

	obj := &Object{
		Key:          oid,
		Size:         aws.Int64Value(output.ContentLength),
		ETag:         aws.StringValue(output.ETag),
		LastModified: aws.TimeValue(output.LastModified),
		Range:        aws.StringValue(output.ContentRange),
		Header: metadataHeader(
			output.ContentType,
			output.ContentEncoding,
			output.ContentLanguage,
			output.ContentDisposition,
			output.CacheControl,
			output.Expires,
		),
		Body: output.Body,
	}
	return obj, nil
}

// Head returns the metadata of the object stored under oid.
func (s *S3) Head(ctx context.Context, oid string) (*Object, error) {
	key, err := s.key(oid)
	if err != nil {
		return nil, err
	}

	output, err := s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}

	obj := &Object{
		Key:          oid,
		Size:         aws.Int64Value(output.ContentLength),
		ETag:         aws.StringValue(output.ETag),
		LastModified: aws.TimeValue(output.LastModified),
		Header: metadataHeader(
			output.ContentType,
			output.ContentEncoding,
			output.ContentLanguage,
			output.ContentDisposition,
			output.CacheControl,
			output.Expires,
		),
	}
	return obj, nil
}

func metadataHeader(contentType, contentEncoding, contentLanguage, contentDisposition, cacheControl, expires *string) http.Header {
	h := http.Header{}
	set := func(key string, value *string) {
		if v := aws.StringValue(value); v != "" {
			h.Set(key, v)
		}
	}
	set("Content-Type", contentType)
	set("Content-Encoding", contentEncoding)
	set("Content-Language", contentLanguage)
	set("Content-Disposition", contentDisposition)
	set("Cache-Control", cacheControl)
	set("Expires", expires)
	return h
}

func isNotFoundError(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
