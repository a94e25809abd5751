package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	//go:embed seed.json
	seedJSON []byte
	//go:embed schema.json
	schemaJSON []byte
)

var ErrInvalidSeed = errors.New("invalid catalog seed")

// SeedData returns the catalog bundled with the binary.
func SeedData() (Data, error) {
	return ParseSeed(seedJSON)
}

// ParseSeed checks raw against the catalog schema and decodes it.
func ParseSeed(raw []byte) (Data, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return Data{}, fmt.Errorf("%w: %s", ErrInvalidSeed, strings.Join(msgs, "; "))
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return data, nil
}

// FromSeed builds the catalog from the bundled seed.
func FromSeed() (*Catalog, error) {
	data, err := SeedData()
	if err != nil {
		return nil, err
	}
	return New(data)
}
