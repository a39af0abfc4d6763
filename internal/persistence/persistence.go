package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Persistence saves and restores values of type T.
type Persistence[T any] struct {
	format    SerializationFormat
	mechanism Mechanism
	extension string
	mustExist bool
}

// Option configures a Persistence.
type Option func(*options)

type options struct {
	extension *string
	mustExist bool
}

// WithFileExtension replaces the format's standard file extension.
// An empty extension disables affixing altogether.
func WithFileExtension(ext string) Option {
	return func(o *options) { o.extension = &ext }
}

// WithMustExist makes Restore fail with ErrNotFound when nothing is
// stored. By default a missing object restores as the zero value.
func WithMustExist() Option {
	return func(o *options) { o.mustExist = true }
}

// New creates a Persistence from a format and a mechanism.
func New[T any](format SerializationFormat, mechanism Mechanism, opts ...Option) *Persistence[T] {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	extension := format.FileExtension()
	if o.extension != nil {
		extension = *o.extension
	}

	return &Persistence[T]{
		format:    format,
		mechanism: mechanism,
		extension: extension,
		mustExist: o.mustExist,
	}
}

// AffixFileExtension appends the file extension to ref unless ref already
// ends with it.
func (p *Persistence[T]) AffixFileExtension(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("file reference cannot be empty")
	}
	if p.extension == "" || strings.HasSuffix(ref, p.extension) {
		return ref, nil
	}
	return ref + p.extension, nil
}

// Persist stores obj under ref and returns the reference actually used.
func (p *Persistence[T]) Persist(ctx context.Context, obj T, ref string) (string, error) {
	use, err := p.AffixFileExtension(ref)
	if err != nil {
		return "", err
	}

	data, err := p.format.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s: %w", use, err)
	}

	if err := p.mechanism.Write(ctx, use, data); err != nil {
		return "", err
	}
	return use, nil
}

// Restore reads the object stored under ref.
//
// When nothing is stored, Restore returns the zero value and a nil error,
// unless the Persistence was created WithMustExist.
func (p *Persistence[T]) Restore(ctx context.Context, ref string) (T, error) {
	var obj T

	use, err := p.AffixFileExtension(ref)
	if err != nil {
		return obj, err
	}

	data, err := p.mechanism.Read(ctx, use)
	if errors.Is(err, ErrNotFound) && !p.mustExist {
		return obj, nil
	}
	if err != nil {
		return obj, err
	}

	if err := p.format.Unmarshal(data, &obj); err != nil {
		return obj, fmt.Errorf("failed to deserialize %s: %w", use, err)
	}
	return obj, nil
}

// Reference is a parsed location: either a local path or an S3 object.
type Reference struct {
	Kind   string
	Bucket string
	Key    string
}

// ParseReference routes "s3://bucket/key" to the s3 mechanism and every
// other reference to the local file mechanism.
func ParseReference(ref string) (Reference, error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return Reference{Kind: MechanismLocal, Key: ref}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Reference{}, fmt.Errorf("invalid s3 reference %q: want s3://bucket/key", ref)
	}
	return Reference{Kind: MechanismS3, Bucket: bucket, Key: key}, nil
}

// ForReference builds a Persistence for ref, choosing the mechanism from
// its scheme and the format from its extension. It returns the key to pass
// to Persist/Restore.
func ForReference[T any](ref, region string, lggr *zap.SugaredLogger, opts ...Option) (*Persistence[T], string, error) {
	parsed, err := ParseReference(ref)
	if err != nil {
		return nil, "", err
	}

	format, err := FormatForReference(parsed.Key)
	if err != nil {
		return nil, "", err
	}

	mechanism, err := NewMechanism(parsed.Kind, MechanismOptions{
		Bucket: parsed.Bucket,
		Region: region,
		Logger: lggr,
	})
	if err != nil {
		return nil, "", err
	}

	// The reference already carries its extension; keep it verbatim so
	// ".yml" or ".rules" is not turned into ".yml.yaml".
	opts = append(opts, WithFileExtension(""))
	return New[T](format, mechanism, opts...), parsed.Key, nil
}
