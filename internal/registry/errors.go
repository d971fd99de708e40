package registry

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the not-found family. Wrapped errors carry the
// offending identifier; callers match with errors.Is.
var (
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrVersionNotFound  = errors.New("version not found")
	ErrSchemaIDNotFound = errors.New("schema id not found")

	// ErrSchemaNotFound is returned by lookups for a schema that is valid
	// but not registered under the queried subject.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrAlreadyExists signals that an identical, non-deleted version
	// already maps to the same schema for a scope. The façade treats it
	// as a success path and returns the existing identity.
	ErrAlreadyExists = errors.New("schema version already exists")

	// ErrVersionDeleted is returned when soft-deleting a version that is
	// already marked deleted.
	ErrVersionDeleted = errors.New("version already deleted")
)

// InvalidArgumentError is a caller error: a malformed subject, version
// reference or parameter. It is detected before any mutation.
type InvalidArgumentError struct {
	Param  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// Details returns the structured fields for API error responses.
func (e *InvalidArgumentError) Details() map[string]interface{} {
	return map[string]interface{}{"param": e.Param}
}

// InvalidModeError is returned for unrecognized compatibility modes.
type InvalidModeError struct {
	Value string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid compatibility mode %q", e.Value)
}

// ParseError wraps a canonicalizer diagnostic for a schema definition that
// failed to parse. Distinct from CompatibilityError: the definition itself
// is malformed.
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s schema: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Incompatibility names one structural rule a candidate schema violates
// against a reference version.
type Incompatibility struct {
	// Path locates the offending element, e.g. "Order.items[].price".
	Path string `json:"path"`
	// Rule is the violated rule, e.g. "field removed without default".
	Rule string `json:"rule"`
}

func (i Incompatibility) String() string {
	if i.Path == "" {
		return i.Rule
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Rule)
}

// CompatibilityError is returned when a candidate schema violates the
// effective compatibility mode. It carries the specific rules violated and
// the version(s) checked; registration fails with no side effects.
type CompatibilityError struct {
	Subject  Subject
	Mode     Mode
	Versions []int
	Causes   []Incompatibility
}

func (e *CompatibilityError) Error() string {
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.String()
	}
	return fmt.Sprintf("schema incompatible with subject %s under %s: %s",
		e.Subject.ScopeKey(), e.Mode, strings.Join(msgs, "; "))
}

// Details returns the structured causes for API error responses.
func (e *CompatibilityError) Details() map[string]interface{} {
	return map[string]interface{}{
		"mode":     string(e.Mode),
		"versions": e.Versions,
		"causes":   e.Causes,
	}
}

// InternalError marks store corruption or an invariant violation. It is
// surfaced to the caller, never swallowed or retried by the core.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal: %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}
