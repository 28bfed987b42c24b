// Package objstore archives every batch as one gzipped JSON object in an
// S3-compatible bucket.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/Arun-Labana/logai-sdk/internal/logging"
)

const defaultRegion = "us-east-1"

type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Sink struct {
	client putter
	bucket string
	now    func() time.Time
}

// NewSink is a logging.SinkFactory. Endpoint has the form
// https://host[:port]/bucket[?region=r]; Credential is "accessKey:secretKey".
func NewSink(cfg logging.Config) (logging.Sink, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse object store url")
	}
	bucket := strings.Trim(u.Path, "/")
	if u.Host == "" || bucket == "" {
		return nil, errors.Errorf("object store url %q needs a host and a bucket", cfg.Endpoint)
	}
	accessKey, secretKey, ok := strings.Cut(cfg.Credential, ":")
	if !ok {
		return nil, errors.New("object store credential must be accessKey:secretKey")
	}
	region := u.Query().Get("region")
	if region == "" {
		region = defaultRegion
	}

	base := url.URL{Scheme: u.Scheme, Host: u.Host}
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(base.String())
		o.UsePathStyle = true
	})
	return &Sink{client: client, bucket: bucket, now: time.Now}, nil
}

func (s *Sink) Send(ctx context.Context, targetID string, batch []logging.Entry) error {
	if len(batch) == 0 {
		return nil
	}

	body, err := encode(batch)
	if err != nil {
		return err
	}

	key := KeyForBatch(targetID, uuid.NewString(), s.now())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return errors.Errorf("put %s: %s: %s", key, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

// KeyForBatch lays objects out by target and UTC day, e.g.
// logs/app-1/2024/03/01/<id>.json.gz.
func KeyForBatch(targetID, batchID string, at time.Time) string {
	if targetID == "" {
		targetID = "default"
	}
	return path.Join("logs", targetID, at.UTC().Format("2006/01/02"), batchID+".json.gz")
}

func encode(batch []logging.Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(batch); err != nil {
		return nil, errors.Wrap(err, "encode batch")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip batch")
	}
	return buf.Bytes(), nil
}
