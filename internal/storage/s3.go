package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/himanishpuri/audiowm/internal/signal"
	"github.com/himanishpuri/audiowm/internal/wav"
)

// S3Config configures access to a bucket holding candidate audio files,
// analogous to the teacher's S3-backed render storage. SignalSource can
// fetch and decode an object by key; the CLI's get/cmp commands and the
// service read local or request-supplied WAV data only and do not use it.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for S3-compatible endpoints (minio etc.)
	AccessKeyID     string // optional
	SecretAccessKey string // optional
}

// SignalSource fetches a WAV object from S3 and decodes it into a Data
// ready for the sync finder / speed detector.
type SignalSource struct {
	client *s3.Client
	bucket string
}

func NewSignalSource(ctx context.Context, cfg S3Config) (*SignalSource, error) {
	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &SignalSource{client: client, bucket: cfg.Bucket}, nil
}

// Fetch downloads objectKey and decodes it as a WAV file.
func (s *SignalSource) Fetch(ctx context.Context, objectKey string) (signal.Data, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return signal.Data{}, fmt.Errorf("get s3 object %q: %w", objectKey, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return signal.Data{}, fmt.Errorf("read s3 object %q: %w", objectKey, err)
	}

	data, err := wav.Read(bytes.NewReader(body))
	if err != nil {
		return signal.Data{}, fmt.Errorf("decode wav %q: %w", objectKey, err)
	}
	return data, nil
}

// Put uploads a WAV-encoded Data under objectKey, returning its bucket URL.
func (s *SignalSource) Put(ctx context.Context, objectKey string, data signal.Data) (string, error) {
	buf := &memWriteSeeker{}
	if err := wav.Write(buf, data); err != nil {
		return "", fmt.Errorf("encode wav %q: %w", objectKey, err)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(buf.bytes),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 object %q: %w", objectKey, err)
	}

	url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, objectKey)
	return url, nil
}

// memWriteSeeker is a growable in-memory io.WriteSeeker, needed because the
// go-audio wav encoder seeks back to the RIFF/data chunk headers on Close
// to patch in final sizes once the byte count is known.
type memWriteSeeker struct {
	bytes []byte
	pos   int64
}

func (w *memWriteSeeker) Write(p []byte) (int, error) {
	end := w.pos + int64(len(p))
	if end > int64(len(w.bytes)) {
		grown := make([]byte, end)
		copy(grown, w.bytes)
		w.bytes = grown
	}
	copy(w.bytes[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

func (w *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = w.pos + offset
	case io.SeekEnd:
		newPos = int64(len(w.bytes)) + offset
	default:
		return 0, fmt.Errorf("memWriteSeeker: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("memWriteSeeker: negative seek position")
	}
	w.pos = newPos
	return newPos, nil
}
