package registry

import (
	"fmt"
	"strings"
	"time"
)

// SubjectType distinguishes key schemas from value schemas for the same
// logical name. Together with the name it forms the scope key.
type SubjectType string

const (
	SubjectKey   SubjectType = "key"
	SubjectValue SubjectType = "value"
)

// Subject identifies a versioned schema scope.
type Subject struct {
	Name string
	Type SubjectType
}

// ScopeKey renders the canonical "{name}-{type}" form used for storage keys
// and in the HTTP API path.
func (s Subject) ScopeKey() string {
	return fmt.Sprintf("%s-%s", s.Name, s.Type)
}

func (s Subject) String() string {
	return s.ScopeKey()
}

// Validate checks that the subject is well-formed.
func (s Subject) Validate() error {
	if s.Name == "" {
		return &InvalidArgumentError{Param: "subject", Reason: "name must not be empty"}
	}
	if s.Type != SubjectKey && s.Type != SubjectValue {
		return &InvalidArgumentError{Param: "type", Reason: fmt.Sprintf("must be %q or %q, got %q", SubjectKey, SubjectValue, s.Type)}
	}
	return nil
}

// ParseScopeKey splits a "{name}-{type}" scope key back into a Subject.
// The type suffix is mandatory; the name may itself contain dashes.
func ParseScopeKey(key string) (Subject, error) {
	idx := strings.LastIndex(key, "-")
	if idx <= 0 || idx == len(key)-1 {
		return Subject{}, &InvalidArgumentError{Param: "subject", Reason: fmt.Sprintf("scope key %q must have a -key or -value suffix", key)}
	}
	s := Subject{Name: key[:idx], Type: SubjectType(key[idx+1:])}
	if err := s.Validate(); err != nil {
		return Subject{}, err
	}
	return s, nil
}

// Format identifies the schema language a definition is written in.
type Format string

const (
	FormatAvro     Format = "AVRO"
	FormatProtobuf Format = "PROTOBUF"
)

// Schema is an immutable registry entry. Two registrations with the same
// canonical form share one id, regardless of subject.
type Schema struct {
	// ID is the global schema id, assigned monotonically and never reused.
	ID int64 `json:"id"`

	// Format is the schema language of the definition.
	Format Format `json:"format"`

	// Fingerprint is a hex SHA-256 of the canonical form, used for dedup.
	Fingerprint string `json:"fingerprint"`

	// Canonical is the normalized structural form of the definition.
	Canonical string `json:"canonical"`

	// Raw is the definition exactly as submitted, kept for round-trips.
	Raw string `json:"raw"`

	// CreatedAt is when the schema was first stored.
	CreatedAt time.Time `json:"created_at"`
}

// Version binds a schema into a subject's history.
type Version struct {
	Subject  Subject `json:"-"`
	Number   int     `json:"version"`
	SchemaID int64   `json:"id"`
	Deleted  bool    `json:"-"`
}

// VersionLatest is the sentinel version reference resolving to the highest
// non-deleted version of a subject.
const VersionLatest = "latest"

// Mode is a compatibility policy between schema versions.
type Mode string

const (
	ModeNone               Mode = "NONE"
	ModeBackward           Mode = "BACKWARD"
	ModeForward            Mode = "FORWARD"
	ModeFull               Mode = "FULL"
	ModeBackwardTransitive Mode = "BACKWARD_TRANSITIVE"
	ModeForwardTransitive  Mode = "FORWARD_TRANSITIVE"
	ModeFullTransitive     Mode = "FULL_TRANSITIVE"
)

// ParseMode validates a compatibility mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(s))
	switch m {
	case ModeNone, ModeBackward, ModeForward, ModeFull,
		ModeBackwardTransitive, ModeForwardTransitive, ModeFullTransitive:
		return m, nil
	}
	return "", &InvalidModeError{Value: s}
}

// Transitive reports whether the mode checks the full version history
// instead of only the latest version.
func (m Mode) Transitive() bool {
	switch m {
	case ModeBackwardTransitive, ModeForwardTransitive, ModeFullTransitive:
		return true
	}
	return false
}
