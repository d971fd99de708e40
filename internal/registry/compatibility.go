package registry

import (
	"context"
	"errors"
	"fmt"
)

// referenceSchema pairs a version number with its canonical schema for
// compatibility evaluation.
type referenceSchema struct {
	Version   int
	Canonical *CanonicalSchema
}

// checkCompatibility evaluates the candidate against the reference history
// under the given mode. References are ordered oldest to newest;
// non-transitive modes check only the newest. An empty history (first
// registration) always passes. Returns a *CompatibilityError naming every
// violated rule, or nil.
func (r *Registry) checkCompatibility(subject Subject, candidate *CanonicalSchema, refs []referenceSchema, mode Mode) error {
	if mode == ModeNone || len(refs) == 0 {
		return nil
	}

	if !mode.Transitive() {
		refs = refs[len(refs)-1:]
	}

	var causes []Incompatibility
	var versions []int
	for _, ref := range refs {
		pairCauses := r.checkPair(candidate, ref.Canonical, mode)
		if len(pairCauses) > 0 {
			causes = append(causes, pairCauses...)
			versions = append(versions, ref.Version)
		}
	}

	if len(causes) == 0 {
		return nil
	}
	return &CompatibilityError{
		Subject:  subject,
		Mode:     mode,
		Versions: versions,
		Causes:   causes,
	}
}

// checkPair applies the pairwise rule between the candidate and one existing
// schema. BACKWARD means the candidate (as reader) must read data written by
// the existing schema; FORWARD is the mirror; FULL requires both.
func (r *Registry) checkPair(candidate, existing *CanonicalSchema, mode Mode) []Incompatibility {
	if candidate.Format != existing.Format {
		return []Incompatibility{{
			Rule: fmt.Sprintf("format changed from %s to %s", existing.Format, candidate.Format),
		}}
	}

	checker, err := r.formats.Checker(candidate.Format)
	if err != nil {
		return []Incompatibility{{Rule: err.Error()}}
	}

	var causes []Incompatibility
	switch mode {
	case ModeBackward, ModeBackwardTransitive:
		causes = checker.CanRead(candidate, existing)
	case ModeForward, ModeForwardTransitive:
		causes = checker.CanRead(existing, candidate)
	case ModeFull, ModeFullTransitive:
		causes = append(checker.CanRead(candidate, existing), checker.CanRead(existing, candidate)...)
	}
	return causes
}

// effectiveMode resolves the compatibility mode for a subject: the override
// if one is set, otherwise the global default.
func (r *Registry) effectiveMode(ctx context.Context, subject Subject) (Mode, error) {
	mode, ok, err := r.store.SubjectMode(ctx, subject)
	if err != nil {
		return "", err
	}
	if ok {
		return mode, nil
	}
	return r.store.GlobalMode(ctx)
}

// referenceSchemas loads the canonical forms the candidate must be checked
// against: the full non-deleted history for transitive modes, the latest
// version otherwise. An empty slice means first registration.
func (r *Registry) referenceSchemas(ctx context.Context, subject Subject, mode Mode) ([]referenceSchema, error) {
	if mode == ModeNone {
		return nil, nil
	}

	var versions []*Version
	if mode.Transitive() {
		all, err := r.store.Versions(ctx, subject)
		if err != nil {
			if errors.Is(err, ErrSubjectNotFound) {
				return nil, nil
			}
			return nil, err
		}
		versions = all
	} else {
		latest, err := r.store.LatestVersion(ctx, subject)
		if err != nil {
			if errors.Is(err, ErrSubjectNotFound) {
				return nil, nil
			}
			return nil, err
		}
		versions = []*Version{latest}
	}

	refs := make([]referenceSchema, 0, len(versions))
	for _, v := range versions {
		canonical, err := r.canonicalByID(ctx, v.SchemaID)
		if err != nil {
			return nil, err
		}
		refs = append(refs, referenceSchema{Version: v.Number, Canonical: canonical})
	}
	return refs, nil
}

// canonicalByID re-canonicalizes a stored schema for structural comparison.
// Stored entries already parsed once, so a failure here is store corruption,
// not caller error.
func (r *Registry) canonicalByID(ctx context.Context, id int64) (*CanonicalSchema, error) {
	s, err := r.schemaByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := r.canonicalize(s.Format, s.Raw)
	if err != nil {
		return nil, &InternalError{Op: fmt.Sprintf("re-parse stored schema %d", id), Err: err}
	}
	return c, nil
}
