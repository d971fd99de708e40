// Package protobuf provides protobuf canonicalization via bufbuild/protocompile
// and a descriptor-level compatibility check.
package protobuf

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"

	"github.com/schemahub/registry/internal/registry"
)

// virtualFileName is the synthetic path under which submitted definitions
// are compiled.
const virtualFileName = "schema.proto"

// Canonicalizer compiles .proto definitions into message descriptors.
type Canonicalizer struct{}

// NewCanonicalizer creates a new protobuf canonicalizer.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{}
}

// Canonicalize compiles the definition and derives the canonical form from a
// deterministic marshal of the resulting file descriptor, so formatting and
// comment differences never produce distinct fingerprints. The proto must
// define at least one top-level message; the first message is the schema.
func (c *Canonicalizer) Canonicalize(raw string) (*registry.CanonicalSchema, error) {
	resolver := &singleFileResolver{fileName: virtualFileName, content: raw}

	compiler := protocompile.Compiler{
		Resolver:       protocompile.WithStandardImports(resolver),
		SourceInfoMode: protocompile.SourceInfoNone,
	}

	files, err := compiler.Compile(context.Background(), virtualFileName)
	if err != nil {
		return nil, &registry.ParseError{Format: registry.FormatProtobuf, Err: err}
	}
	if len(files) == 0 {
		return nil, &registry.ParseError{Format: registry.FormatProtobuf, Err: fmt.Errorf("no files compiled")}
	}

	fd := files[0]
	if fd.Messages().Len() == 0 {
		return nil, &registry.ParseError{Format: registry.FormatProtobuf, Err: fmt.Errorf("proto must define at least one message")}
	}
	msgDesc := fd.Messages().Get(0)

	fdProto := protodesc.ToFileDescriptorProto(fd)
	canonical, err := proto.MarshalOptions{Deterministic: true}.Marshal(fdProto)
	if err != nil {
		return nil, &registry.ParseError{Format: registry.FormatProtobuf, Err: err}
	}

	sum := sha256.Sum256(canonical)
	return &registry.CanonicalSchema{
		Format:      registry.FormatProtobuf,
		Canonical:   base64.StdEncoding.EncodeToString(canonical),
		Fingerprint: hex.EncodeToString(sum[:]),
		Proto:       &msgDesc,
	}, nil
}

// singleFileResolver provides proto content for compilation.
type singleFileResolver struct {
	fileName string
	content  string
}

func (r *singleFileResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	if path == r.fileName {
		return protocompile.SearchResult{
			Source: strings.NewReader(r.content),
		}, nil
	}
	return protocompile.SearchResult{}, fmt.Errorf("file not found: %s", path)
}
