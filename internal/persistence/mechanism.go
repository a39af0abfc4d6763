package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/leaf-ai/leaf-common/internal/logger"
)

// ErrNotFound is returned when nothing is stored under a reference.
var ErrNotFound = errors.New("persisted object not found")

// Mechanism kinds accepted by NewMechanism.
const (
	MechanismNull  = "null"
	MechanismLocal = "local"
	MechanismS3    = "s3"
)

// Mechanisms lists every supported mechanism kind.
var Mechanisms = []string{MechanismNull, MechanismLocal, MechanismS3}

// Mechanism stores and retrieves raw bytes by reference.
type Mechanism interface {
	// Kind returns one of the Mechanism* constants.
	Kind() string

	// Read returns the stored bytes, or an error wrapping ErrNotFound.
	Read(ctx context.Context, ref string) ([]byte, error)

	Write(ctx context.Context, ref string, data []byte) error
}

// MechanismOptions configures NewMechanism.
type MechanismOptions struct {
	// Bucket and Region are required for the s3 mechanism.
	Bucket string
	Region string

	Logger *zap.SugaredLogger
}

// NewMechanism creates a mechanism by kind.
func NewMechanism(kind string, opts MechanismOptions) (Mechanism, error) {
	switch kind {
	case MechanismNull, "":
		return NullMechanism{}, nil
	case MechanismLocal:
		return NewLocalFileMechanism(opts.Logger), nil
	case MechanismS3:
		return NewS3Mechanism(opts.Bucket, opts.Region, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown persistence mechanism %q (valid: %s)", kind, strings.Join(Mechanisms, ", "))
	}
}

// NullMechanism persists nothing. Every read reports ErrNotFound.
type NullMechanism struct{}

func (NullMechanism) Kind() string { return MechanismNull }

func (NullMechanism) Read(_ context.Context, ref string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s (null persistence)", ErrNotFound, ref)
}

func (NullMechanism) Write(context.Context, string, []byte) error { return nil }

// LocalFileMechanism stores each reference as a file path.
type LocalFileMechanism struct {
	lggr *zap.SugaredLogger
}

// NewLocalFileMechanism creates a local file mechanism.
func NewLocalFileMechanism(lggr *zap.SugaredLogger) *LocalFileMechanism {
	return &LocalFileMechanism{lggr: logger.OrNop(lggr).Named("persistence")}
}

func (m *LocalFileMechanism) Kind() string { return MechanismLocal }

func (m *LocalFileMechanism) Read(_ context.Context, ref string) ([]byte, error) {
	m.log().Debugw("reading", "path", ref)

	data, err := os.ReadFile(ref)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

// Write creates any missing parent directories before writing.
func (m *LocalFileMechanism) Write(_ context.Context, ref string, data []byte) error {
	m.log().Debugw("writing", "path", ref)

	if dir := filepath.Dir(ref); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(ref, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

func (m *LocalFileMechanism) log() *zap.SugaredLogger {
	return logger.OrNop(m.lggr)
}

// S3Mechanism stores each reference as an object key in one bucket.
type S3Mechanism struct {
	api    s3iface.S3API
	bucket string
	lggr   *zap.SugaredLogger
}

// NewS3Mechanism creates an S3 mechanism using the default AWS credential
// chain (environment, shared config, instance role).
func NewS3Mechanism(bucket, region string, lggr *zap.SugaredLogger) (*S3Mechanism, error) {
	if bucket == "" {
		return nil, errors.New("s3 persistence requires a bucket")
	}

	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewS3MechanismWithAPI(s3.New(sess), bucket, lggr), nil
}

// NewS3MechanismWithAPI creates an S3 mechanism on an existing client.
func NewS3MechanismWithAPI(api s3iface.S3API, bucket string, lggr *zap.SugaredLogger) *S3Mechanism {
	return &S3Mechanism{api: api, bucket: bucket, lggr: logger.OrNop(lggr).Named("persistence")}
}

func (m *S3Mechanism) Kind() string { return MechanismS3 }

func (m *S3Mechanism) Read(ctx context.Context, ref string) ([]byte, error) {
	m.lggr.Debugw("reading", "bucket", m.bucket, "key", ref)

	out, err := m.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, m.bucket, ref)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", m.bucket, ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", m.bucket, ref, err)
	}
	return data, nil
}

func (m *S3Mechanism) Write(ctx context.Context, ref string, data []byte) error {
	m.lggr.Debugw("writing", "bucket", m.bucket, "key", ref)

	_, err := m.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(ref),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", m.bucket, ref, err)
	}
	return nil
}
