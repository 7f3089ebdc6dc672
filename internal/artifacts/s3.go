// Package artifacts stores and retrieves patient documents in the shared
// object store (MinIO in the standard deployment). The documents bucket
// holds the uploaded PA form and referral package; the forms bucket holds
// the filled PA form the form stage produces.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"claimease/internal/config"
)

// ErrArtifactNotFound is returned when the requested object does not exist,
// typically because the pipeline has not produced it yet.
var ErrArtifactNotFound = errors.New("artifact not found")

// ObjectStore is the subset of the S3 API the store needs; satisfied by
// *s3.Client and by fakes in tests.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store wraps the object store with the bucket layout the stage services use.
type Store struct {
	client          ObjectStore
	documentsBucket string
	formsBucket     string
}

func NewStore(client ObjectStore, documentsBucket, formsBucket string) *Store {
	return &Store{client: client, documentsBucket: documentsBucket, formsBucket: formsBucket}
}

// NewClient builds an S3 client pointed at the configured endpoint. MinIO
// needs path-style addressing and static credentials.
func NewClient(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	}), nil
}

// PutDocument stores an uploaded patient document under
// {subject}/{filename} in the documents bucket.
func (s *Store) PutDocument(ctx context.Context, subjectID, filename, contentType string, body io.Reader) error {
	key := subjectID + "/" + filename
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.documentsBucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put document %s: %w", key, err)
	}
	return nil
}

// GetFilledForm streams the filled PA form for a subject. The caller must
// close the reader.
func (s *Store) GetFilledForm(ctx context.Context, subjectID string) (io.ReadCloser, error) {
	key := subjectID + "/filled_pa_form.pdf"
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.formsBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("get filled form %s: %w", key, err)
	}
	return out.Body, nil
}
