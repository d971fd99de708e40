package registry

import (
	"fmt"
	"sync"

	"github.com/hamba/avro/v2"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// CanonicalSchema is the parsed, normalized form of a schema definition.
// Uses discriminated union pattern for type safety across formats.
type CanonicalSchema struct {
	Format      Format
	Canonical   string
	Fingerprint string

	// Discriminated union - exactly one is populated based on Format
	Avro  avro.Schema                     // When Format = FormatAvro
	Proto *protoreflect.MessageDescriptor // When Format = FormatProtobuf
}

// AvroSchema returns the parsed Avro schema if this is an Avro canonical form.
func (c *CanonicalSchema) AvroSchema() (avro.Schema, error) {
	if c.Format != FormatAvro || c.Avro == nil {
		return nil, fmt.Errorf("not an avro schema (format: %s)", c.Format)
	}
	return c.Avro, nil
}

// ProtoDescriptor returns the protobuf descriptor if this is a protobuf
// canonical form.
func (c *CanonicalSchema) ProtoDescriptor() (protoreflect.MessageDescriptor, error) {
	if c.Format != FormatProtobuf || c.Proto == nil {
		return nil, fmt.Errorf("not a protobuf schema (format: %s)", c.Format)
	}
	return *c.Proto, nil
}

// Canonicalizer turns raw schema text into a canonical structural form and a
// stable fingerprint, or fails with a diagnostic. Each schema format
// implements this interface.
type Canonicalizer interface {
	Canonicalize(raw string) (*CanonicalSchema, error)
}

// Checker decides structural read compatibility between two canonical
// schemas of the same format.
type Checker interface {
	// CanRead reports whether data written with the writer schema can be
	// read with the reader schema. A nil/empty result means compatible.
	CanRead(reader, writer *CanonicalSchema) []Incompatibility
}

// FormatRegistry manages canonicalizer and checker implementations for each
// schema format. It acts as a central registry for pluggable format support.
type FormatRegistry struct {
	mu             sync.RWMutex
	canonicalizers map[Format]Canonicalizer
	checkers       map[Format]Checker
}

// NewFormatRegistry creates a new format registry.
func NewFormatRegistry() *FormatRegistry {
	return &FormatRegistry{
		canonicalizers: make(map[Format]Canonicalizer),
		checkers:       make(map[Format]Checker),
	}
}

// RegisterFormat registers canonicalizer and checker for a schema format.
// This should be called during initialization to enable format support.
func (r *FormatRegistry) RegisterFormat(format Format, c Canonicalizer, ch Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.canonicalizers[format] = c
	r.checkers[format] = ch
}

// Canonicalizer retrieves the canonicalizer for a given format.
func (r *FormatRegistry) Canonicalizer(format Format) (Canonicalizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.canonicalizers[format]
	if !exists {
		return nil, &InvalidArgumentError{Param: "format", Reason: fmt.Sprintf("unsupported schema format %q", format)}
	}
	return c, nil
}

// Checker retrieves the compatibility checker for a given format.
func (r *FormatRegistry) Checker(format Format) (Checker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, exists := r.checkers[format]
	if !exists {
		return nil, &InvalidArgumentError{Param: "format", Reason: fmt.Sprintf("unsupported schema format %q", format)}
	}
	return ch, nil
}

// SupportedFormats returns a list of all registered formats.
func (r *FormatRegistry) SupportedFormats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]Format, 0, len(r.canonicalizers))
	for format := range r.canonicalizers {
		formats = append(formats, format)
	}
	return formats
}
