package protobuf

import (
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/schemahub/registry/internal/registry"
)

// Checker verifies wire compatibility between two protobuf message
// descriptors. Field numbers are the identity on the wire: a number that
// changes kind or cardinality breaks decoding; renamed fields do not.
type Checker struct{}

// NewChecker creates a new protobuf compatibility checker.
func NewChecker() *Checker {
	return &Checker{}
}

// CanRead reports whether a reader using the reader schema decodes messages
// produced with the writer schema. Proto3 fields are optional with zero
// defaults, so removed and added fields are tolerated; only field-number
// reuse with a different shape is rejected.
func (c *Checker) CanRead(reader, writer *registry.CanonicalSchema) []registry.Incompatibility {
	r, err := reader.ProtoDescriptor()
	if err != nil {
		return []registry.Incompatibility{{Rule: err.Error()}}
	}
	w, err := writer.ProtoDescriptor()
	if err != nil {
		return []registry.Incompatibility{{Rule: err.Error()}}
	}

	walk := &descWalk{seen: make(map[string]bool)}
	walk.compare(r, w, string(r.Name()))
	return walk.causes
}

type descWalk struct {
	seen   map[string]bool
	causes []registry.Incompatibility
}

func (d *descWalk) fail(path, rule string) {
	d.causes = append(d.causes, registry.Incompatibility{Path: path, Rule: rule})
}

func (d *descWalk) compare(reader, writer protoreflect.MessageDescriptor, path string) {
	pair := string(reader.FullName()) + "|" + string(writer.FullName())
	if d.seen[pair] {
		return
	}
	d.seen[pair] = true

	writerFields := writer.Fields()
	readerFields := reader.Fields()

	for i := 0; i < readerFields.Len(); i++ {
		rf := readerFields.Get(i)
		wf := writerFields.ByNumber(rf.Number())
		if wf == nil {
			continue // absent on the wire, decodes to the zero value
		}

		fieldPath := fmt.Sprintf("%s.%s(#%d)", path, rf.Name(), rf.Number())

		if rf.Kind() != wf.Kind() {
			d.fail(fieldPath, fmt.Sprintf("field number %d changed kind from %s to %s", rf.Number(), wf.Kind(), rf.Kind()))
			continue
		}
		if rf.Cardinality() != wf.Cardinality() {
			d.fail(fieldPath, fmt.Sprintf("field number %d changed cardinality from %s to %s", rf.Number(), wf.Cardinality(), rf.Cardinality()))
			continue
		}
		if rf.Kind() == protoreflect.MessageKind || rf.Kind() == protoreflect.GroupKind {
			d.compare(rf.Message(), wf.Message(), fieldPath)
		}
	}
}
