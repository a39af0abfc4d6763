// Package logger builds the zap loggers shared by leaf-common packages.
//
// Loggers are injected as *zap.SugaredLogger and usually Named after the
// component using them, e.g. lggr.Named("lint"). Library code never builds
// its own logger; when none is injected it falls back to Nop.
package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// New returns the CLI logger. Verbose output uses the development encoder
// at Debug level with colored levels; otherwise only Info and above are
// written, still in console form since leafctl is used interactively.
func New(verbose bool) (*zap.SugaredLogger, error) {
	return NewWith(func(cfg *zap.Config) {
		*cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = !verbose
		if !verbose {
			cfg.Level.SetLevel(zapcore.InfoLevel)
			cfg.DisableCaller = true
		}
	})
}

// NewWith returns a logger from a modified production [zap.Config].
func NewWith(cfgFn func(*zap.Config)) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfgFn(&cfg)
	core, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return core.Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// OrNop returns lggr, or a no-op logger when lggr is nil.
func OrNop(lggr *zap.SugaredLogger) *zap.SugaredLogger {
	if lggr == nil {
		return Nop()
	}

	return lggr
}

// Test returns a logger that writes through t.Log at Debug level.
func Test(tb testing.TB) *zap.SugaredLogger {
	return zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)).Sugar()
}
