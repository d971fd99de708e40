package registry

import (
	"context"
)

// Store persists the three registry tables: the append-only schema log, the
// per-subject version index and the compatibility config. Implementations
// must keep global schema-id assignment atomic; writer serialization per
// subject is the façade's job.
type Store interface {
	// PutSchema stores a canonical schema, deduplicating by fingerprint.
	// If an entry with the same fingerprint exists its Schema is returned
	// and created is false; ids are never reassigned or reused.
	PutSchema(ctx context.Context, format Format, fingerprint, canonical, raw string) (s *Schema, created bool, err error)

	// SchemaByID retrieves a schema from the log. Deleting versions or
	// subjects never removes log entries. Returns ErrSchemaIDNotFound.
	SchemaByID(ctx context.Context, id int64) (*Schema, error)

	// SchemaByFingerprint retrieves a schema by its content fingerprint.
	// Returns ErrSchemaIDNotFound if absent.
	SchemaByFingerprint(ctx context.Context, fingerprint string) (*Schema, error)

	// AppendVersion assigns max(existing)+1 (counting soft-deleted rows,
	// so numbers are never reused) and binds it to the schema id. If a
	// non-deleted version of the subject already maps to the same schema
	// id, the existing version is returned with ErrAlreadyExists.
	AppendVersion(ctx context.Context, subject Subject, schemaID int64) (*Version, error)

	// ListVersions returns the non-deleted version numbers in ascending
	// order. Returns ErrSubjectNotFound if none exist.
	ListVersions(ctx context.Context, subject Subject) ([]int, error)

	// Versions returns the full non-deleted history, oldest to newest.
	// Returns ErrSubjectNotFound if none exist.
	Versions(ctx context.Context, subject Subject) ([]*Version, error)

	// GetVersion retrieves one version. Returns ErrVersionNotFound if the
	// number is absent or soft-deleted, ErrSubjectNotFound if the subject
	// has no versions at all.
	GetVersion(ctx context.Context, subject Subject, number int) (*Version, error)

	// LatestVersion resolves the highest non-deleted version number.
	// Returns ErrSubjectNotFound if the subject has none.
	LatestVersion(ctx context.Context, subject Subject) (*Version, error)

	// VersionBySchemaID finds the non-deleted version of the subject
	// bound to the schema id. Returns ErrVersionNotFound if absent.
	VersionBySchemaID(ctx context.Context, subject Subject, schemaID int64) (*Version, error)

	// SoftDeleteVersion marks one version deleted. Returns
	// ErrVersionDeleted if already deleted, ErrVersionNotFound if absent.
	SoftDeleteVersion(ctx context.Context, subject Subject, number int) error

	// DeleteSubject soft-deletes every non-deleted version and returns
	// their numbers in ascending order. Idempotent: an empty subject
	// yields an empty result and no error.
	DeleteSubject(ctx context.Context, subject Subject) ([]int, error)

	// ListSubjects returns the scope keys with at least one non-deleted
	// version, sorted.
	ListSubjects(ctx context.Context) ([]string, error)

	// GlobalMode returns the global default compatibility mode. It always
	// has a value once the store is initialized.
	GlobalMode(ctx context.Context) (Mode, error)

	// SetGlobalMode replaces the global default.
	SetGlobalMode(ctx context.Context, mode Mode) error

	// SubjectMode returns the per-subject override and whether one is set.
	SubjectMode(ctx context.Context, subject Subject) (Mode, bool, error)

	// SetSubjectMode sets the per-subject override.
	SetSubjectMode(ctx context.Context, subject Subject, mode Mode) error

	// ClearSubjectMode removes the per-subject override, falling back to
	// the global default. Clearing an unset override is a no-op.
	ClearSubjectMode(ctx context.Context, subject Subject) error

	// Ping verifies the store is reachable, for health checks.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
