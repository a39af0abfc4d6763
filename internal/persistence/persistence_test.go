package persistence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaf-ai/leaf-common/internal/logger"
)

type sample struct {
	Name   string             `json:"name" yaml:"name" toml:"name"`
	Count  int                `json:"count" yaml:"count" toml:"count"`
	Limits map[string]float64 `json:"limits" yaml:"limits" toml:"limits"`
}

var testSample = sample{Name: "agent", Count: 3, Limits: map[string]float64{"max": 6, "min": 1}}

// TestPersistence_LocalRoundtrip persists and restores through every
// format on the local file mechanism.
func TestPersistence_LocalRoundtrip(t *testing.T) {
	formats := []SerializationFormat{JSONFormat{Pretty: true}, JSONFormat{}, YAMLFormat{}, TOMLFormat{}}

	for _, format := range formats {
		t.Run(format.FileExtension(), func(t *testing.T) {
			ctx := context.Background()
			p := New[sample](format, NewLocalFileMechanism(logger.Test(t)))

			ref := filepath.Join(t.TempDir(), "nested", "dir", "model")
			used, err := p.Persist(ctx, testSample, ref)
			require.NoError(t, err)
			assert.Equal(t, ref+format.FileExtension(), used)
			assert.FileExists(t, used)

			// Restoring with or without the extension reaches the same file.
			restored, err := p.Restore(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, testSample, restored)

			restored, err = p.Restore(ctx, used)
			require.NoError(t, err)
			assert.Equal(t, testSample, restored)
		})
	}
}

// TestJSONFormat_AcceptsJSONC verifies comments and trailing commas are
// tolerated on restore.
func TestJSONFormat_AcceptsJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	content := `{
  // hand edited
  "name": "agent",
  "count": 3, /* three */
  "limits": {"min": 1, "max": 6,},
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := New[sample](JSONFormat{}, NewLocalFileMechanism(nil))
	restored, err := p.Restore(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, testSample, restored)
}

// TestJSONFormat_Pretty checks the four-space indentation.
func TestJSONFormat_Pretty(t *testing.T) {
	data, err := JSONFormat{Pretty: true}.Marshal(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"a\": 1,\n    \"b\": 2\n}", string(data))
}

// TestPersistence_Missing covers the default and must-exist behaviors.
func TestPersistence_Missing(t *testing.T) {
	ctx := context.Background()
	ref := filepath.Join(t.TempDir(), "absent")

	lenient := New[sample](YAMLFormat{}, NewLocalFileMechanism(nil))
	restored, err := lenient.Restore(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, sample{}, restored)

	strict := New[sample](YAMLFormat{}, NewLocalFileMechanism(nil), WithMustExist())
	_, err = strict.Restore(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestAffixFileExtension covers extension handling.
func TestAffixFileExtension(t *testing.T) {
	p := New[sample](JSONFormat{}, NullMechanism{})

	ref, err := p.AffixFileExtension("model")
	require.NoError(t, err)
	assert.Equal(t, "model.json", ref)

	ref, err = p.AffixFileExtension("model.json")
	require.NoError(t, err)
	assert.Equal(t, "model.json", ref)

	_, err = p.AffixFileExtension("")
	assert.Error(t, err)

	custom := New[sample](JSONFormat{}, NullMechanism{}, WithFileExtension(".rules"))
	ref, err = custom.AffixFileExtension("agent")
	require.NoError(t, err)
	assert.Equal(t, "agent.rules", ref)
}

// TestNullMechanism verifies nothing is kept.
func TestNullMechanism(t *testing.T) {
	ctx := context.Background()
	p := New[sample](JSONFormat{}, NullMechanism{}, WithMustExist())

	_, err := p.Persist(ctx, testSample, "anything")
	require.NoError(t, err)

	_, err = p.Restore(ctx, "anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestNewMechanism covers kind selection.
func TestNewMechanism(t *testing.T) {
	m, err := NewMechanism(MechanismLocal, MechanismOptions{})
	require.NoError(t, err)
	assert.Equal(t, MechanismLocal, m.Kind())

	m, err = NewMechanism("", MechanismOptions{})
	require.NoError(t, err)
	assert.Equal(t, MechanismNull, m.Kind())

	_, err = NewMechanism(MechanismS3, MechanismOptions{})
	assert.Error(t, err, "s3 without a bucket must fail")

	_, err = NewMechanism("ftp", MechanismOptions{})
	assert.Error(t, err)
}

// fakeS3 keeps objects in memory. Embedding the interface satisfies the
// methods this package never calls.
type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// TestS3Mechanism verifies object keys and not-found mapping.
func TestS3Mechanism(t *testing.T) {
	ctx := context.Background()
	api := &fakeS3{objects: map[string][]byte{}}
	p := New[sample](TOMLFormat{}, NewS3MechanismWithAPI(api, "models", logger.Test(t)), WithMustExist())

	used, err := p.Persist(ctx, testSample, "experiments/gen-50")
	require.NoError(t, err)
	assert.Equal(t, "experiments/gen-50.toml", used)
	assert.Contains(t, api.objects, "models/experiments/gen-50.toml")

	restored, err := p.Restore(ctx, "experiments/gen-50")
	require.NoError(t, err)
	assert.Equal(t, testSample, restored)

	_, err = p.Restore(ctx, "experiments/gen-51")
	assert.True(t, errors.Is(err, ErrNotFound))
}

// TestParseReference covers local and S3 references.
func TestParseReference(t *testing.T) {
	tests := []struct {
		ref     string
		want    Reference
		wantErr bool
	}{
		{"models/agent.json", Reference{Kind: MechanismLocal, Key: "models/agent.json"}, false},
		{"s3://bucket/a/b.yaml", Reference{Kind: MechanismS3, Bucket: "bucket", Key: "a/b.yaml"}, false},
		{"s3://bucket", Reference{}, true},
		{"s3:///key", Reference{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ParseReference(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestForReference keeps the reference's own extension.
func TestForReference(t *testing.T) {
	ctx := context.Background()
	ref := filepath.Join(t.TempDir(), "agent.yml")

	p, key, err := ForReference[sample](ref, "", nil)
	require.NoError(t, err)
	assert.Equal(t, ref, key)

	used, err := p.Persist(ctx, testSample, key)
	require.NoError(t, err)
	assert.Equal(t, ref, used)

	_, _, err = ForReference[sample]("agent.bin", "", nil)
	assert.Error(t, err)
}
