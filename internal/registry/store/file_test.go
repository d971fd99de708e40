package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/schemahub/registry/internal/registry"
	"github.com/schemahub/registry/internal/registry/store"
)

func TestFileStore_RecoversStateAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("OpenFileStore() error: %v", err)
	}

	s1 := putSchema(t, fs, "fp-1")
	s2 := putSchema(t, fs, "fp-2")
	if _, err := fs.AppendVersion(ctx, subjUsers, s1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.AppendVersion(ctx, subjUsers, s2.ID); err != nil {
		t.Fatal(err)
	}
	if err := fs.SoftDeleteVersion(ctx, subjUsers, 1); err != nil {
		t.Fatal(err)
	}
	if err := fs.SetGlobalMode(ctx, registry.ModeFull); err != nil {
		t.Fatal(err)
	}
	if err := fs.SetSubjectMode(ctx, subjUsers, registry.ModeNone); err != nil {
		t.Fatal(err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	// Schemas and the id counter survive.
	got, err := reopened.SchemaByID(ctx, s1.ID)
	if err != nil {
		t.Fatalf("SchemaByID() after reopen error: %v", err)
	}
	if got.Fingerprint != "fp-1" {
		t.Errorf("recovered fingerprint = %q, want fp-1", got.Fingerprint)
	}
	s3 := putSchema(t, reopened, "fp-3")
	if s3.ID != 3 {
		t.Errorf("id after reopen = %d, want 3 (counter continues)", s3.ID)
	}

	// The tombstone took effect and version numbering continues past it.
	versions, err := reopened.ListVersions(ctx, subjUsers)
	if err != nil {
		t.Fatalf("ListVersions() after reopen error: %v", err)
	}
	if len(versions) != 1 || versions[0] != 2 {
		t.Errorf("ListVersions() after reopen = %v, want [2]", versions)
	}
	v, err := reopened.AppendVersion(ctx, subjUsers, s3.ID)
	if err != nil {
		t.Fatalf("AppendVersion() after reopen error: %v", err)
	}
	if v.Number != 3 {
		t.Errorf("version after reopen = %d, want 3", v.Number)
	}

	// Config log replays both the global default and the override.
	mode, err := reopened.GlobalMode(ctx)
	if err != nil {
		t.Fatalf("GlobalMode() after reopen error: %v", err)
	}
	if mode != registry.ModeFull {
		t.Errorf("GlobalMode() after reopen = %s, want FULL", mode)
	}
	mode, ok, _ := reopened.SubjectMode(ctx, subjUsers)
	if !ok || mode != registry.ModeNone {
		t.Errorf("SubjectMode() after reopen = (%s, %v), want (NONE, true)", mode, ok)
	}
}

func TestFileStore_DeleteSubjectReplaysAsTombstones(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("OpenFileStore() error: %v", err)
	}
	s1 := putSchema(t, fs, "fp-1")
	s2 := putSchema(t, fs, "fp-2")
	for _, id := range []int64{s1.ID, s2.ID} {
		if _, err := fs.AppendVersion(ctx, subjUsers, id); err != nil {
			t.Fatal(err)
		}
	}
	deleted, err := fs.DeleteSubject(ctx, subjUsers)
	if err != nil {
		t.Fatalf("DeleteSubject() error: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("DeleteSubject() = %v, want two versions", deleted)
	}
	fs.Close()

	reopened, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.ListVersions(ctx, subjUsers); !errors.Is(err, registry.ErrSubjectNotFound) {
		t.Errorf("ListVersions() after replayed delete error = %v, want ErrSubjectNotFound", err)
	}
	// The schema log is untouched by subject deletion.
	if _, err := reopened.SchemaByID(ctx, s1.ID); err != nil {
		t.Errorf("SchemaByID() after replayed delete error: %v", err)
	}
}

func TestFileStore_ClearedOverrideStaysCleared(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fs, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("OpenFileStore() error: %v", err)
	}
	if err := fs.SetSubjectMode(ctx, subjUsers, registry.ModeForward); err != nil {
		t.Fatal(err)
	}
	if err := fs.ClearSubjectMode(ctx, subjUsers); err != nil {
		t.Fatal(err)
	}
	fs.Close()

	reopened, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	if _, ok, _ := reopened.SubjectMode(ctx, subjUsers); ok {
		t.Error("cleared override reappeared after replay")
	}
}

func TestFileStore_CorruptLogAbortsRecovery(t *testing.T) {
	dir := t.TempDir()

	fs, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("OpenFileStore() error: %v", err)
	}
	putSchema(t, fs, "fp-1")
	fs.Close()

	path := filepath.Join(dir, "schemas.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{truncated\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := store.OpenFileStore(dir, registry.ModeBackward); err == nil {
		t.Fatal("OpenFileStore() succeeded on a corrupt log, want error")
	}
}

func TestFileStore_OpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "registry")

	fs, err := store.OpenFileStore(dir, registry.ModeBackward)
	if err != nil {
		t.Fatalf("OpenFileStore() error: %v", err)
	}
	defer fs.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("store directory missing: %v", err)
	}
}
