package persistence

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// SerializationFormat converts objects to and from bytes.
type SerializationFormat interface {
	// FileExtension returns the extension for the format, including the dot.
	FileExtension() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONFormat serializes with encoding/json. Map keys are always written
// in sorted order, so output is stable across runs.
type JSONFormat struct {
	// Pretty indents the output by four spaces.
	Pretty bool
}

func (JSONFormat) FileExtension() string { return ".json" }

func (f JSONFormat) Marshal(v any) ([]byte, error) {
	if f.Pretty {
		return json.MarshalIndent(v, "", "    ")
	}
	return json.Marshal(v)
}

// Unmarshal accepts JSONC: comments and trailing commas are stripped
// before decoding, so hand-edited files restore cleanly.
func (JSONFormat) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(jsonc.ToJSON(data), v)
}

// YAMLFormat serializes with gopkg.in/yaml.v3.
type YAMLFormat struct{}

func (YAMLFormat) FileExtension() string { return ".yaml" }

func (YAMLFormat) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

func (YAMLFormat) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

// TOMLFormat serializes with go-toml/v2.
type TOMLFormat struct{}

func (TOMLFormat) FileExtension() string { return ".toml" }

func (TOMLFormat) Marshal(v any) ([]byte, error) { return toml.Marshal(v) }

func (TOMLFormat) Unmarshal(data []byte, v any) error { return toml.Unmarshal(data, v) }

// FormatForReference picks a format from the reference's extension.
// ".rules" files are the JSON rule-model files written by older tooling.
func FormatForReference(ref string) (SerializationFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(ref)); ext {
	case ".json", ".jsonc", ".rules":
		return JSONFormat{Pretty: true}, nil
	case ".yaml", ".yml":
		return YAMLFormat{}, nil
	case ".toml":
		return TOMLFormat{}, nil
	default:
		return nil, fmt.Errorf("no serialization format for extension %q of %s", ext, ref)
	}
}
