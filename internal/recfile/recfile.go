// Package recfile reads and writes recordings.
//
// A recording is a document holding the ordered records of an event log.
// ".rec" and ".json" files are JSON arrays; ".yaml" and ".yml" hold the
// same records as a YAML sequence. JSON documents are validated against
// an embedded JSON Schema before decoding.
package recfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"macrorec/internal/macro"
)

// Format is a document encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// Ext is the default recording file extension.
const Ext = ".rec"

// ErrEmpty is returned when saving a recording without events.
var ErrEmpty = errors.New("recording has no events")

//go:embed rec.schema.json
var schemaJSON []byte

const schemaURL = "rec.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Schema returns the JSON Schema of recording documents.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// FormatFor picks the format from a file extension. Unknown extensions
// are JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Marshal encodes events as a document. JSON output is indented by two
// spaces, does not escape HTML characters and ends with a newline.
func Marshal(events []macro.Event, f Format) ([]byte, error) {
	records := macro.EncodeLog(events)
	if f == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a document. Malformed documents and records fail with
// an error wrapping macro.ErrCodec.
func Unmarshal(data []byte, f Format) ([]macro.Event, error) {
	var records []macro.Record
	if f == FormatYAML {
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", macro.ErrCodec, err)
		}
		return macro.DecodeLog(records)
	}

	if err := Validate(data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", macro.ErrCodec, err)
	}
	return macro.DecodeLog(records)
}

// Validate checks a JSON document against the recording schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", macro.ErrCodec, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", macro.ErrCodec, err)
	}
	return nil
}

// Save writes events to path in the format its extension selects. The
// file is written to a temporary file in the same directory and renamed
// into place.
func Save(path string, events []macro.Event) error {
	if len(events) == 0 {
		return ErrEmpty
	}
	data, err := Marshal(events, FormatFor(path))
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Load reads a recording.
func Load(path string) ([]macro.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	events, err := Unmarshal(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// Convert reads src and writes its events to dst, converting between
// formats by extension.
func Convert(src, dst string) error {
	events, err := Load(src)
	if err != nil {
		return err
	}
	return Save(dst, events)
}

// Info summarises a recording.
type Info struct {
	Events   int
	Duration float64
	Counts   map[macro.Kind]int
}

// Describe summarises events.
func Describe(events []macro.Event) Info {
	l := macro.NewLog(events...)
	return Info{Events: l.Len(), Duration: l.Duration(), Counts: l.Counts()}
}

// Stat loads path and summarises it.
func Stat(path string) (Info, error) {
	events, err := Load(path)
	if err != nil {
		return Info{}, err
	}
	return Describe(events), nil
}
