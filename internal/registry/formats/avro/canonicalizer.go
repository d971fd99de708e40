// Package avro provides Avro canonicalization and structural compatibility
// checking backed by hamba/avro.
package avro

import (
	"encoding/hex"

	"github.com/hamba/avro/v2"

	"github.com/schemahub/registry/internal/registry"
)

// Canonicalizer parses Avro schema definitions into their canonical form.
type Canonicalizer struct{}

// NewCanonicalizer creates a new Avro canonicalizer.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{}
}

// Canonicalize parses the raw definition and returns its canonical form and
// fingerprint. Each parse uses a fresh schema cache so identically named
// types registered under different subjects never conflict.
func (c *Canonicalizer) Canonicalize(raw string) (*registry.CanonicalSchema, error) {
	parsed, err := avro.ParseWithCache(raw, "", &avro.SchemaCache{})
	if err != nil {
		return nil, &registry.ParseError{Format: registry.FormatAvro, Err: err}
	}

	fp := parsed.Fingerprint()
	return &registry.CanonicalSchema{
		Format:      registry.FormatAvro,
		Canonical:   parsed.String(),
		Fingerprint: hex.EncodeToString(fp[:]),
		Avro:        parsed,
	}, nil
}
