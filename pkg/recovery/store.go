package recovery

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/gitgraft/pkg/persist"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Load when no record exists at the path.
	ErrNotFound = errors.New("recovery record not found")
	// ErrInvalidRecord is returned for records that fail schema or invariant checks.
	ErrInvalidRecord = errors.New("invalid recovery record")
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Store loads and saves recovery records.
type Store struct {
	codec *persist.JSONCodec
}

// NewStore creates a Store writing indented JSON and rejecting unknown fields on load.
func NewStore() *Store {
	codec := persist.NewJSONCodec()
	codec.Strict = true

	return &Store{codec: codec}
}

// Load reads, schema-validates, decodes and invariant-checks the record at path.
func (s *Store) Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return nil, fmt.Errorf("read recovery record: %w", err)
	}

	return s.Decode(data)
}

// Decode parses a record from bytes with the same checks as Load.
func (s *Store) Decode(data []byte) (*State, error) {
	schemaErr := ValidateSchema(data)
	if schemaErr != nil {
		return nil, schemaErr
	}

	var state State

	decodeErr := persist.Unmarshal(s.codec, data, &state)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, decodeErr)
	}

	validateErr := state.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &state, nil
}

// Save validates the state and atomically replaces the record at path.
// The encoded record passes the same checks as Load. A failed save leaves
// the previous record intact.
func (s *Store) Save(path string, state *State) error {
	validateErr := state.Validate()
	if validateErr != nil {
		return fmt.Errorf("refusing to save: %w", validateErr)
	}

	data, err := persist.Marshal(s.codec, state)
	if err != nil {
		return err
	}

	schemaErr := ValidateSchema(data)
	if schemaErr != nil {
		return fmt.Errorf("refusing to save: %w", schemaErr)
	}

	err = persist.WriteFileAtomic(path, data)
	if err != nil {
		return fmt.Errorf("save recovery record %s: %w", path, err)
	}

	return nil
}

// ValidateSchema checks raw record bytes against the embedded JSON Schema.
func ValidateSchema(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(msgs, "; "))
}
