package avro

import (
	"fmt"

	"github.com/hamba/avro/v2"

	"github.com/schemahub/registry/internal/registry"
)

// Checker implements Avro schema resolution rules: whether data written with
// the writer schema can be read with the reader schema.
type Checker struct{}

// NewChecker creates a new Avro compatibility checker.
func NewChecker() *Checker {
	return &Checker{}
}

// CanRead walks both schemas structurally and collects every violated
// resolution rule. An empty result means the reader can read the writer.
func (c *Checker) CanRead(reader, writer *registry.CanonicalSchema) []registry.Incompatibility {
	r, err := reader.AvroSchema()
	if err != nil {
		return []registry.Incompatibility{{Rule: err.Error()}}
	}
	w, err := writer.AvroSchema()
	if err != nil {
		return []registry.Incompatibility{{Rule: err.Error()}}
	}

	walk := &resolution{seen: make(map[refPair]bool)}
	walk.resolve(r, w, "")
	return walk.causes
}

// refPair guards against infinite recursion through recursive record types.
type refPair struct {
	reader, writer string
}

type resolution struct {
	seen   map[refPair]bool
	causes []registry.Incompatibility
}

func (res *resolution) fail(path, rule string) {
	res.causes = append(res.causes, registry.Incompatibility{Path: path, Rule: rule})
}

func (res *resolution) resolve(reader, writer avro.Schema, path string) {
	reader = deref(reader)
	writer = deref(writer)

	// Union handling precedes everything else: a writer union means any
	// branch may appear in the data, so the reader must accept them all.
	if wu, ok := writer.(*avro.UnionSchema); ok {
		for _, branch := range wu.Types() {
			res.resolveIntoReader(reader, branch, path)
		}
		return
	}
	res.resolveIntoReader(reader, writer, path)
}

// resolveIntoReader matches a single (non-union) writer schema against the
// reader, which may itself be a union.
func (res *resolution) resolveIntoReader(reader, writer avro.Schema, path string) {
	if ru, ok := reader.(*avro.UnionSchema); ok {
		// The writer branch is readable if any reader branch accepts it.
		for _, branch := range ru.Types() {
			probe := &resolution{seen: res.seen}
			probe.resolveSame(deref(branch), writer, path)
			if len(probe.causes) == 0 {
				return
			}
		}
		res.fail(path, fmt.Sprintf("writer type %s not covered by reader union", writer.Type()))
		return
	}
	res.resolveSame(reader, writer, path)
}

func (res *resolution) resolveSame(reader, writer avro.Schema, path string) {
	switch w := writer.(type) {
	case *avro.RecordSchema:
		r, ok := reader.(*avro.RecordSchema)
		if !ok {
			res.mismatch(reader, writer, path)
			return
		}
		res.resolveRecord(r, w, path)
	case *avro.EnumSchema:
		r, ok := reader.(*avro.EnumSchema)
		if !ok {
			res.mismatch(reader, writer, path)
			return
		}
		res.resolveEnum(r, w, path)
	case *avro.FixedSchema:
		r, ok := reader.(*avro.FixedSchema)
		if !ok {
			res.mismatch(reader, writer, path)
			return
		}
		if !namesMatch(r.FullName(), r.Aliases(), w.FullName()) {
			res.fail(path, fmt.Sprintf("fixed name changed from %s to %s", w.FullName(), r.FullName()))
		}
		if r.Size() != w.Size() {
			res.fail(path, fmt.Sprintf("fixed size changed from %d to %d", w.Size(), r.Size()))
		}
	case *avro.ArraySchema:
		r, ok := reader.(*avro.ArraySchema)
		if !ok {
			res.mismatch(reader, writer, path)
			return
		}
		res.resolve(r.Items(), w.Items(), path+"[]")
	case *avro.MapSchema:
		r, ok := reader.(*avro.MapSchema)
		if !ok {
			res.mismatch(reader, writer, path)
			return
		}
		res.resolve(r.Values(), w.Values(), path+"{}")
	default:
		if !promotable(writer.Type(), reader.Type()) {
			res.mismatch(reader, writer, path)
		}
	}
}

func (res *resolution) resolveRecord(reader, writer *avro.RecordSchema, path string) {
	if !namesMatch(reader.FullName(), reader.Aliases(), writer.FullName()) {
		res.fail(path, fmt.Sprintf("record name changed from %s to %s", writer.FullName(), reader.FullName()))
		return
	}

	pair := refPair{reader: reader.FullName(), writer: writer.FullName()}
	if res.seen[pair] {
		return
	}
	res.seen[pair] = true
	defer delete(res.seen, pair)

	if path == "" {
		path = reader.FullName()
	}

	writerFields := make(map[string]*avro.Field, len(writer.Fields()))
	for _, f := range writer.Fields() {
		writerFields[f.Name()] = f
	}

	for _, rf := range reader.Fields() {
		fieldPath := path + "." + rf.Name()

		wf := writerFields[rf.Name()]
		if wf == nil {
			// Reader field aliases may point at a renamed writer field.
			for _, alias := range rf.Aliases() {
				if writerFields[alias] != nil {
					wf = writerFields[alias]
					break
				}
			}
		}

		if wf == nil {
			if !rf.HasDefault() {
				res.fail(fieldPath, "field has no default value and no matching field in prior schema")
			}
			continue
		}
		res.resolve(rf.Type(), wf.Type(), fieldPath)
	}
	// Writer fields absent from the reader are dropped on read: compatible.
}

func (res *resolution) resolveEnum(reader, writer *avro.EnumSchema, path string) {
	if !namesMatch(reader.FullName(), reader.Aliases(), writer.FullName()) {
		res.fail(path, fmt.Sprintf("enum name changed from %s to %s", writer.FullName(), reader.FullName()))
		return
	}

	symbols := make(map[string]bool, len(reader.Symbols()))
	for _, s := range reader.Symbols() {
		symbols[s] = true
	}
	for _, s := range writer.Symbols() {
		if !symbols[s] {
			// An enum default absorbs unknown writer symbols.
			if reader.Default() == "" {
				res.fail(path, fmt.Sprintf("enum symbol %q removed without a default", s))
			}
		}
	}
}

func (res *resolution) mismatch(reader, writer avro.Schema, path string) {
	res.fail(path, fmt.Sprintf("type changed from %s to %s", writer.Type(), reader.Type()))
}

func deref(s avro.Schema) avro.Schema {
	if ref, ok := s.(*avro.RefSchema); ok {
		return ref.Schema()
	}
	return s
}

func namesMatch(readerName string, readerAliases []string, writerName string) bool {
	if readerName == writerName {
		return true
	}
	for _, alias := range readerAliases {
		if alias == writerName {
			return true
		}
	}
	return false
}

// promotable reports whether a writer primitive may be promoted to the
// reader primitive per Avro schema resolution.
func promotable(writer, reader avro.Type) bool {
	if writer == reader {
		return true
	}
	switch writer {
	case avro.Int:
		return reader == avro.Long || reader == avro.Float || reader == avro.Double
	case avro.Long:
		return reader == avro.Float || reader == avro.Double
	case avro.Float:
		return reader == avro.Double
	case avro.String:
		return reader == avro.Bytes
	case avro.Bytes:
		return reader == avro.String
	}
	return false
}
