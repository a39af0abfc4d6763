// Package config loads leafctl settings.
//
// Settings come from an optional file (YAML, JSON or TOML, chosen by
// extension) and LEAF_* environment variables, which take precedence over
// the file. Command-line flags are applied on top by the cli package.
package config
