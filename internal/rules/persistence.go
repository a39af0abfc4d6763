package rules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leaf-ai/leaf-common/internal/persistence"
)

// AgentFileExtension is the extension of saved Agent files.
const AgentFileExtension = ".rules"

// NewBindingPersistence creates a Persistence for Bindings in the given
// format. Restored bindings are validated.
func NewBindingPersistence(format persistence.SerializationFormat, mechanism persistence.Mechanism,
	opts ...persistence.Option) *BindingPersistence {
	opts = append([]persistence.Option{persistence.WithMustExist()}, opts...)
	return &BindingPersistence{
		inner: persistence.New[*Binding](format, mechanism, opts...),
	}
}

// BindingPersistenceFor picks the mechanism and format for ref (a local
// path or s3://bucket/key) and returns the key to use with it.
func BindingPersistenceFor(ref, region string, lggr *zap.SugaredLogger) (*BindingPersistence, string, error) {
	inner, key, err := persistence.ForReference[*Binding](ref, region, lggr, persistence.WithMustExist())
	if err != nil {
		return nil, "", err
	}
	return &BindingPersistence{inner: inner}, key, nil
}

// BindingPersistence saves and restores Bindings.
type BindingPersistence struct {
	inner *persistence.Persistence[*Binding]
}

// Persist stores b under ref and returns the reference used.
func (p *BindingPersistence) Persist(ctx context.Context, b *Binding, ref string) (string, error) {
	if b.Key == "" {
		b.Key = BindingKey
	}
	return p.inner.Persist(ctx, b, ref)
}

// Restore reads and validates the Binding stored under ref.
func (p *BindingPersistence) Restore(ctx context.Context, ref string) (*Binding, error) {
	b, err := p.inner.Restore(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("restored %s: %w", ref, err)
	}
	return b, nil
}

// SaveAgent writes a as pretty JSON to path, appending ".rules" when
// missing.
func SaveAgent(ctx context.Context, a *Agent, path string) (string, error) {
	p := agentPersistence()
	return p.Persist(ctx, a, path)
}

// LoadAgent reads an Agent saved with SaveAgent.
func LoadAgent(ctx context.Context, path string) (*Agent, error) {
	p := agentPersistence()
	return p.Restore(ctx, path)
}

func agentPersistence() *persistence.Persistence[*Agent] {
	return persistence.New[*Agent](
		persistence.JSONFormat{Pretty: true},
		persistence.NewLocalFileMechanism(nil),
		persistence.WithFileExtension(AgentFileExtension),
		persistence.WithMustExist(),
	)
}
