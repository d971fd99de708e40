package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/schemahub/registry/internal/registry"
	"github.com/schemahub/registry/internal/registry/store"
)

var (
	subjUsers  = registry.Subject{Name: "users", Type: registry.SubjectValue}
	subjOrders = registry.Subject{Name: "orders", Type: registry.SubjectValue}
)

func putSchema(t *testing.T, st registry.Store, fingerprint string) *registry.Schema {
	t.Helper()

	s, _, err := st.PutSchema(context.Background(), registry.FormatAvro, fingerprint, "{"+fingerprint+"}", "{ "+fingerprint+" }")
	if err != nil {
		t.Fatalf("PutSchema(%s) error: %v", fingerprint, err)
	}
	return s
}

func TestMemoryStore_PutSchema(t *testing.T) {
	st := store.NewMemoryStore(registry.ModeBackward)
	ctx := context.Background()

	s1, created, err := st.PutSchema(ctx, registry.FormatAvro, "fp-1", "canon", "raw")
	if err != nil {
		t.Fatalf("PutSchema() error: %v", err)
	}
	if !created || s1.ID != 1 {
		t.Errorf("PutSchema() = (id %d, created %v), want (1, true)", s1.ID, created)
	}

	// Same fingerprint resolves to the existing entry.
	s2, created, err := st.PutSchema(ctx, registry.FormatAvro, "fp-1", "canon", "raw")
	if err != nil {
		t.Fatalf("PutSchema() error: %v", err)
	}
	if created || s2.ID != s1.ID {
		t.Errorf("duplicate PutSchema() = (id %d, created %v), want (%d, false)", s2.ID, created, s1.ID)
	}

	s3, _, err := st.PutSchema(ctx, registry.FormatAvro, "fp-2", "canon2", "raw2")
	if err != nil {
		t.Fatalf("PutSchema() error: %v", err)
	}
	if s3.ID != 2 {
		t.Errorf("second schema id = %d, want 2", s3.ID)
	}

	got, err := st.SchemaByFingerprint(ctx, "fp-2")
	if err != nil {
		t.Fatalf("SchemaByFingerprint() error: %v", err)
	}
	if got.ID != s3.ID {
		t.Errorf("SchemaByFingerprint() id = %d, want %d", got.ID, s3.ID)
	}

	if _, err := st.SchemaByID(ctx, 99); !errors.Is(err, registry.ErrSchemaIDNotFound) {
		t.Errorf("SchemaByID(99) error = %v, want ErrSchemaIDNotFound", err)
	}
}

func TestMemoryStore_AppendVersion(t *testing.T) {
	st := store.NewMemoryStore(registry.ModeBackward)
	ctx := context.Background()

	s1 := putSchema(t, st, "fp-1")
	s2 := putSchema(t, st, "fp-2")

	v1, err := st.AppendVersion(ctx, subjUsers, s1.ID)
	if err != nil {
		t.Fatalf("AppendVersion() error: %v", err)
	}
	if v1.Number != 1 {
		t.Errorf("first version = %d, want 1", v1.Number)
	}

	v2, err := st.AppendVersion(ctx, subjUsers, s2.ID)
	if err != nil {
		t.Fatalf("AppendVersion() error: %v", err)
	}
	if v2.Number != 2 {
		t.Errorf("second version = %d, want 2", v2.Number)
	}

	// Re-binding the same schema signals the existing row.
	dup, err := st.AppendVersion(ctx, subjUsers, s1.ID)
	if !errors.Is(err, registry.ErrAlreadyExists) {
		t.Fatalf("duplicate AppendVersion() error = %v, want ErrAlreadyExists", err)
	}
	if dup.Number != 1 {
		t.Errorf("duplicate AppendVersion() version = %d, want 1", dup.Number)
	}

	// Subjects version independently.
	other, err := st.AppendVersion(ctx, subjOrders, s1.ID)
	if err != nil {
		t.Fatalf("AppendVersion() error: %v", err)
	}
	if other.Number != 1 {
		t.Errorf("other subject version = %d, want 1", other.Number)
	}
}

func TestMemoryStore_VersionsNeverReused(t *testing.T) {
	st := store.NewMemoryStore(registry.ModeBackward)
	ctx := context.Background()

	s1 := putSchema(t, st, "fp-1")
	s2 := putSchema(t, st, "fp-2")
	if _, err := st.AppendVersion(ctx, subjUsers, s1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendVersion(ctx, subjUsers, s2.ID); err != nil {
		t.Fatal(err)
	}

	if err := st.SoftDeleteVersion(ctx, subjUsers, 2); err != nil {
		t.Fatalf("SoftDeleteVersion() error: %v", err)
	}

	// A deleted binding no longer blocks re-registration, and the new row
	// continues past the tombstone.
	v, err := st.AppendVersion(ctx, subjUsers, s2.ID)
	if err != nil {
		t.Fatalf("AppendVersion() after delete error: %v", err)
	}
	if v.Number != 3 {
		t.Errorf("version after delete = %d, want 3", v.Number)
	}
}

func TestMemoryStore_VersionLookups(t *testing.T) {
	st := store.NewMemoryStore(registry.ModeBackward)
	ctx := context.Background()

	s1 := putSchema(t, st, "fp-1")
	s2 := putSchema(t, st, "fp-2")
	if _, err := st.AppendVersion(ctx, subjUsers, s1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendVersion(ctx, subjUsers, s2.ID); err != nil {
		t.Fatal(err)
	}

	latest, err := st.LatestVersion(ctx, subjUsers)
	if err != nil {
		t.Fatalf("LatestVersion() error: %v", err)
	}
	if latest.Number != 2 || latest.SchemaID != s2.ID {
		t.Errorf("LatestVersion() = (version %d, schema %d), want (2, %d)", latest.Number, latest.SchemaID, s2.ID)
	}

	v, err := st.VersionBySchemaID(ctx, subjUsers, s1.ID)
	if err != nil {
		t.Fatalf("VersionBySchemaID() error: %v", err)
	}
	if v.Number != 1 {
		t.Errorf("VersionBySchemaID() = %d, want 1", v.Number)
	}

	if _, err := st.GetVersion(ctx, subjUsers, 5); !errors.Is(err, registry.ErrVersionNotFound) {
		t.Errorf("GetVersion(5) error = %v, want ErrVersionNotFound", err)
	}
	if _, err := st.GetVersion(ctx, subjOrders, 1); !errors.Is(err, registry.ErrSubjectNotFound) {
		t.Errorf("GetVersion() on missing subject error = %v, want ErrSubjectNotFound", err)
	}
	if _, err := st.LatestVersion(ctx, subjOrders); !errors.Is(err, registry.ErrSubjectNotFound) {
		t.Errorf("LatestVersion() on missing subject error = %v, want ErrSubjectNotFound", err)
	}
}

func TestMemoryStore_SoftDelete(t *testing.T) {
	st := store.NewMemoryStore(registry.ModeBackward)
	ctx := context.Background()

	s1 := putSchema(t, st, "fp-1")
	s2 := putSchema(t, st, "fp-2")
	if _, err := st.AppendVersion(ctx, subjUsers, s1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendVersion(ctx, subjUsers, s2.ID); err != nil {
		t.Fatal(err)
	}

	if err := st.SoftDeleteVersion(ctx, subjUsers, 1); err != nil {
		t.Fatalf("SoftDeleteVersion() error: %v", err)
	}

	versions, err := st.ListVersions(ctx, subjUsers)
	if err != nil {
		t.Fatalf("ListVersions() error: %v", err)
	}
	if len(versions) != 1 || versions[0] != 2 {
		t.Errorf("ListVersions() = %v, want [2]", versions)
	}

	if _, err := st.GetVersion(ctx, subjUsers, 1); !errors.Is(err, registry.ErrVersionNotFound) {
		t.Errorf("GetVersion(1) after delete error = %v, want ErrVersionNotFound", err)
	}
	if err := st.SoftDeleteVersion(ctx, subjUsers, 1); !errors.Is(err, registry.ErrVersionDeleted) {
		t.Errorf("second SoftDeleteVersion() error = %v, want ErrVersionDeleted", err)
	}
	if err := st.SoftDeleteVersion(ctx, subjUsers, 9); !errors.Is(err, registry.ErrVersionNotFound) {
		t.Errorf("SoftDeleteVersion(9) error = %v, want ErrVersionNotFound", err)
	}

	// Schemas outlive deleted bindings.
	if _, err := st.SchemaByID(ctx, s1.ID); err != nil {
		t.Errorf("SchemaByID() after version delete error: %v", err)
	}
}

func TestMemoryStore_DeleteSubjectAndListSubjects(t *testing.T) {
	st := store.NewMemoryStore(registry.ModeBackward)
	ctx := context.Background()

	s1 := putSchema(t, st, "fp-1")
	s2 := putSchema(t, st, "fp-2")
	for _, id := range []int64{s1.ID, s2.ID} {
		if _, err := st.AppendVersion(ctx, subjUsers, id); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := st.AppendVersion(ctx, subjOrders, s1.ID); err != nil {
		t.Fatal(err)
	}

	subjects, err := st.ListSubjects(ctx)
	if err != nil {
		t.Fatalf("ListSubjects() error: %v", err)
	}
	if len(subjects) != 2 || subjects[0] != "orders-value" || subjects[1] != "users-value" {
		t.Errorf("ListSubjects() = %v, want sorted [orders-value users-value]", subjects)
	}

	deleted, err := st.DeleteSubject(ctx, subjUsers)
	if err != nil {
		t.Fatalf("DeleteSubject() error: %v", err)
	}
	if len(deleted) != 2 || deleted[0] != 1 || deleted[1] != 2 {
		t.Errorf("DeleteSubject() = %v, want [1 2]", deleted)
	}

	subjects, _ = st.ListSubjects(ctx)
	if len(subjects) != 1 || subjects[0] != "orders-value" {
		t.Errorf("ListSubjects() after delete = %v, want [orders-value]", subjects)
	}

	// Idempotent.
	deleted, err = st.DeleteSubject(ctx, subjUsers)
	if err != nil {
		t.Fatalf("second DeleteSubject() error: %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("second DeleteSubject() = %v, want empty", deleted)
	}
}

func TestMemoryStore_Modes(t *testing.T) {
	st := store.NewMemoryStore(registry.ModeBackward)
	ctx := context.Background()

	mode, err := st.GlobalMode(ctx)
	if err != nil {
		t.Fatalf("GlobalMode() error: %v", err)
	}
	if mode != registry.ModeBackward {
		t.Errorf("GlobalMode() = %s, want BACKWARD", mode)
	}

	if err := st.SetGlobalMode(ctx, registry.ModeFull); err != nil {
		t.Fatalf("SetGlobalMode() error: %v", err)
	}
	mode, _ = st.GlobalMode(ctx)
	if mode != registry.ModeFull {
		t.Errorf("GlobalMode() = %s, want FULL", mode)
	}

	if _, ok, _ := st.SubjectMode(ctx, subjUsers); ok {
		t.Error("SubjectMode() reported an override before one was set")
	}
	if err := st.SetSubjectMode(ctx, subjUsers, registry.ModeNone); err != nil {
		t.Fatalf("SetSubjectMode() error: %v", err)
	}
	mode, ok, _ := st.SubjectMode(ctx, subjUsers)
	if !ok || mode != registry.ModeNone {
		t.Errorf("SubjectMode() = (%s, %v), want (NONE, true)", mode, ok)
	}
	if err := st.ClearSubjectMode(ctx, subjUsers); err != nil {
		t.Fatalf("ClearSubjectMode() error: %v", err)
	}
	if _, ok, _ := st.SubjectMode(ctx, subjUsers); ok {
		t.Error("SubjectMode() still reports an override after clear")
	}
}
