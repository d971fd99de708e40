// Package registry implements the schema registry core: a versioned,
// content-addressed store of serialization schemas with compatibility
// enforcement across versions.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/schemahub/registry/internal/metrics"
)

// DefaultCacheCapacity is the default number of schemas to cache.
const DefaultCacheCapacity = 1000

// Registry is the public operation surface. It owns all stores exclusively;
// writers serialize per scope key, readers never block behind them.
type Registry struct {
	store   Store
	formats *FormatRegistry
	cache   *schemaCache
	locks   *scopeLocks
	metrics *metrics.Metrics

	// canonGroup dedupes concurrent canonicalization of identical text.
	canonGroup singleflight.Group
}

// New creates a registry over the given store and format registry.
func New(store Store, formats *FormatRegistry) *Registry {
	return NewWithOptions(store, formats, DefaultCacheCapacity, nil)
}

// NewWithOptions creates a registry with a custom cache capacity and
// optional Prometheus instrumentation.
func NewWithOptions(store Store, formats *FormatRegistry, cacheCapacity int, m *metrics.Metrics) *Registry {
	return &Registry{
		store:   store,
		formats: formats,
		cache:   newSchemaCache(cacheCapacity),
		locks:   newScopeLocks(),
		metrics: m,
	}
}

// Registration is the result of a register or lookup operation: the global
// schema id and the subject-scoped version bound to it.
type Registration struct {
	Subject  Subject `json:"-"`
	SchemaID int64   `json:"id"`
	Version  int     `json:"version"`
}

// VersionedSchema is a schema resolved through a subject version.
type VersionedSchema struct {
	Subject Subject
	Version int
	Schema  *Schema
}

// Register stores a schema under the subject, enforcing the effective
// compatibility mode. Identical canonical content is deduplicated at both
// the global level (same id) and the subject level (same version).
// Compatibility failure leaves no side effects.
func (r *Registry) Register(ctx context.Context, subject Subject, format Format, raw string) (*Registration, error) {
	start := time.Now()

	reg, err := r.register(ctx, subject, format, raw, false)
	outcome := "success"
	if err != nil {
		outcome = registerOutcome(err)
	}
	r.metrics.ObserveRegistration(string(format), outcome, start)
	return reg, err
}

// CheckSchema validates the definition and reports its existing registration
// under the subject without mutating anything. Returns ErrSchemaNotFound when
// the schema is valid but not registered under the subject.
func (r *Registry) CheckSchema(ctx context.Context, subject Subject, format Format, raw string) (*Registration, error) {
	return r.register(ctx, subject, format, raw, true)
}

// register implements both Register and its dry-run variant.
func (r *Registry) register(ctx context.Context, subject Subject, format Format, raw string, dryRun bool) (*Registration, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, &InvalidArgumentError{Param: "schema", Reason: "definition must not be empty"}
	}

	// Canonicalization is the expensive step; do it before taking the
	// per-scope write lock.
	canonical, err := r.canonicalize(format, raw)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.lock(subject.ScopeKey())
	defer unlock()

	if dryRun {
		// Lookup path: report the existing registration if any.
		existing, err := r.store.SchemaByFingerprint(ctx, canonical.Fingerprint)
		if err == nil {
			v, err := r.store.VersionBySchemaID(ctx, subject, existing.ID)
			if err == nil {
				return &Registration{Subject: subject, SchemaID: existing.ID, Version: v.Number}, nil
			}
			if !errors.Is(err, ErrVersionNotFound) {
				return nil, err
			}
		} else if !errors.Is(err, ErrSchemaIDNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: schema is not registered under subject %s", ErrSchemaNotFound, subject.ScopeKey())
	}

	mode, err := r.effectiveMode(ctx, subject)
	if err != nil {
		return nil, err
	}

	refs, err := r.referenceSchemas(ctx, subject, mode)
	if err != nil {
		return nil, err
	}

	if err := r.checkCompatibility(subject, canonical, refs, mode); err != nil {
		r.metrics.ObserveCompatCheck(string(mode), "incompatible")
		return nil, err
	}
	r.metrics.ObserveCompatCheck(string(mode), "compatible")

	schema, created, err := r.store.PutSchema(ctx, format, canonical.Fingerprint, canonical.Canonical, raw)
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("Stored new schema", "id", schema.ID, "format", format, "fingerprint", schema.Fingerprint)
	}
	r.cache.put(schema)

	version, err := r.store.AppendVersion(ctx, subject, schema.ID)
	if errors.Is(err, ErrAlreadyExists) {
		// Duplicate registration resolves to the existing identity.
		return &Registration{Subject: subject, SchemaID: schema.ID, Version: version.Number}, nil
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Registered schema version",
		"subject", subject.ScopeKey(), "version", version.Number, "schema_id", schema.ID)
	return &Registration{Subject: subject, SchemaID: schema.ID, Version: version.Number}, nil
}

// TestCompatibility runs the compatibility gate without registering. With
// the "latest" reference it behaves exactly like the register gate under the
// effective mode; with an explicit version it checks pairwise against that
// version only.
func (r *Registry) TestCompatibility(ctx context.Context, subject Subject, format Format, raw, versionRef string) (bool, []Incompatibility, error) {
	if err := subject.Validate(); err != nil {
		return false, nil, err
	}

	candidate, err := r.canonicalize(format, raw)
	if err != nil {
		return false, nil, err
	}

	mode, err := r.effectiveMode(ctx, subject)
	if err != nil {
		return false, nil, err
	}

	var refs []referenceSchema
	if versionRef == VersionLatest {
		refs, err = r.referenceSchemas(ctx, subject, mode)
		if err != nil {
			return false, nil, err
		}
	} else {
		number, err := parseVersionRef(versionRef)
		if err != nil {
			return false, nil, err
		}
		v, err := r.store.GetVersion(ctx, subject, number)
		if err != nil {
			return false, nil, err
		}
		canonical, err := r.canonicalByID(ctx, v.SchemaID)
		if err != nil {
			return false, nil, err
		}
		refs = []referenceSchema{{Version: v.Number, Canonical: canonical}}
	}

	err = r.checkCompatibility(subject, candidate, refs, mode)
	if err == nil {
		r.metrics.ObserveCompatCheck(string(mode), "compatible")
		return true, nil, nil
	}
	var compatErr *CompatibilityError
	if errors.As(err, &compatErr) {
		r.metrics.ObserveCompatCheck(string(mode), "incompatible")
		return false, compatErr.Causes, nil
	}
	return false, nil, err
}

// GetSchemaByID fetches a schema from the global log. Soft or hard subject
// deletion never removes log entries.
func (r *Registry) GetSchemaByID(ctx context.Context, id int64) (*Schema, error) {
	r.metrics.ObserveLookup("schema_by_id")

	if s := r.cache.get(id); s != nil {
		return s, nil
	}
	s, err := r.schemaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.put(s)
	return s, nil
}

func (r *Registry) schemaByID(ctx context.Context, id int64) (*Schema, error) {
	s, err := r.store.SchemaByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSchemaIDNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrSchemaIDNotFound, id)
		}
		return nil, err
	}
	return s, nil
}

// GetSchema resolves a subject version ("latest" or a number) to its schema.
func (r *Registry) GetSchema(ctx context.Context, subject Subject, versionRef string) (*VersionedSchema, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	r.metrics.ObserveLookup("schema_by_version")

	v, err := r.resolveVersion(ctx, subject, versionRef)
	if err != nil {
		return nil, err
	}
	s, err := r.GetSchemaByID(ctx, v.SchemaID)
	if err != nil {
		return nil, err
	}
	return &VersionedSchema{Subject: subject, Version: v.Number, Schema: s}, nil
}

// ListVersions returns the subject's non-deleted version numbers ascending.
func (r *Registry) ListVersions(ctx context.Context, subject Subject) ([]int, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	r.metrics.ObserveLookup("list_versions")
	return r.store.ListVersions(ctx, subject)
}

// ListSubjects returns the scope keys with at least one non-deleted version.
func (r *Registry) ListSubjects(ctx context.Context) ([]string, error) {
	r.metrics.ObserveLookup("list_subjects")
	return r.store.ListSubjects(ctx)
}

// DeleteVersion soft-deletes one version and returns its number.
func (r *Registry) DeleteVersion(ctx context.Context, subject Subject, versionRef string) (int, error) {
	if err := subject.Validate(); err != nil {
		return 0, err
	}

	unlock := r.locks.lock(subject.ScopeKey())
	defer unlock()

	v, err := r.resolveVersion(ctx, subject, versionRef)
	if err != nil {
		return 0, err
	}
	if err := r.store.SoftDeleteVersion(ctx, subject, v.Number); err != nil {
		return 0, err
	}

	slog.Info("Deleted schema version", "subject", subject.ScopeKey(), "version", v.Number)
	return v.Number, nil
}

// DeleteSubject soft-deletes every version of the subject and returns the
// deleted numbers ascending. Deleting an empty subject is a no-op.
func (r *Registry) DeleteSubject(ctx context.Context, subject Subject) ([]int, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}

	unlock := r.locks.lock(subject.ScopeKey())
	defer unlock()

	deleted, err := r.store.DeleteSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		slog.Info("Deleted subject", "subject", subject.ScopeKey(), "versions", deleted)
	}
	return deleted, nil
}

// GlobalCompatibility returns the global default compatibility mode.
func (r *Registry) GlobalCompatibility(ctx context.Context) (Mode, error) {
	return r.store.GlobalMode(ctx)
}

// SetGlobalCompatibility replaces the global default mode.
func (r *Registry) SetGlobalCompatibility(ctx context.Context, mode Mode) (Mode, error) {
	parsed, err := ParseMode(string(mode))
	if err != nil {
		return "", err
	}
	if err := r.store.SetGlobalMode(ctx, parsed); err != nil {
		return "", err
	}
	return parsed, nil
}

// SubjectCompatibility returns the effective mode for the subject.
func (r *Registry) SubjectCompatibility(ctx context.Context, subject Subject) (Mode, error) {
	if err := subject.Validate(); err != nil {
		return "", err
	}
	return r.effectiveMode(ctx, subject)
}

// SetSubjectCompatibility sets a per-subject override.
func (r *Registry) SetSubjectCompatibility(ctx context.Context, subject Subject, mode Mode) (Mode, error) {
	if err := subject.Validate(); err != nil {
		return "", err
	}
	parsed, err := ParseMode(string(mode))
	if err != nil {
		return "", err
	}
	if err := r.store.SetSubjectMode(ctx, subject, parsed); err != nil {
		return "", err
	}
	return parsed, nil
}

// ClearSubjectCompatibility removes a per-subject override.
func (r *Registry) ClearSubjectCompatibility(ctx context.Context, subject Subject) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	return r.store.ClearSubjectMode(ctx, subject)
}

// resolveVersion turns a version reference into a concrete version row.
func (r *Registry) resolveVersion(ctx context.Context, subject Subject, versionRef string) (*Version, error) {
	if versionRef == "" || versionRef == VersionLatest {
		return r.store.LatestVersion(ctx, subject)
	}
	number, err := parseVersionRef(versionRef)
	if err != nil {
		return nil, err
	}
	return r.store.GetVersion(ctx, subject, number)
}

func parseVersionRef(ref string) (int, error) {
	n, err := strconv.Atoi(ref)
	if err != nil || n < 1 {
		return 0, &InvalidArgumentError{Param: "version", Reason: fmt.Sprintf("must be %q or a positive integer, got %q", VersionLatest, ref)}
	}
	return n, nil
}

// canonicalize parses raw schema text, deduping concurrent identical parses.
func (r *Registry) canonicalize(format Format, raw string) (*CanonicalSchema, error) {
	c, err := r.formats.Canonicalizer(format)
	if err != nil {
		return nil, err
	}

	key := string(format) + "|" + raw
	result, err, _ := r.canonGroup.Do(key, func() (interface{}, error) {
		return c.Canonicalize(raw)
	})
	if err != nil {
		return nil, err
	}
	return result.(*CanonicalSchema), nil
}

func registerOutcome(err error) string {
	var parseErr *ParseError
	var compatErr *CompatibilityError
	switch {
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.As(err, &compatErr):
		return "incompatible"
	default:
		return "error"
	}
}
