package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schemahub/registry/internal/registry"
)

// Log file names inside the store directory. Each is an append-only JSONL
// log; together they form the persisted state of the registry.
const (
	schemaLogFile  = "schemas.log"
	versionLogFile = "versions.log"
	configLogFile  = "configs.log"
)

type schemaRecord struct {
	ID          int64           `json:"id"`
	Format      registry.Format `json:"format"`
	Fingerprint string          `json:"fingerprint"`
	Canonical   string          `json:"canonical"`
	Raw         string          `json:"raw"`
	CreatedAt   time.Time       `json:"created_at"`
}

type versionRecord struct {
	Subject  string `json:"subject"`
	Version  int    `json:"version"`
	SchemaID int64  `json:"schema_id"`
	Deleted  bool   `json:"deleted"`
}

type configRecord struct {
	Subject string        `json:"subject"` // empty for the global default
	Mode    registry.Mode `json:"mode,omitempty"`
	Cleared bool          `json:"cleared,omitempty"`
}

// FileStore is a durable registry.Store backed by three append-only JSONL
// logs. All reads are served from an in-memory replica rebuilt from the logs
// on open; every mutation is applied in memory and appended to the matching
// log before it is acknowledged.
type FileStore struct {
	mu  sync.Mutex
	mem *MemoryStore

	schemaLog  *os.File
	versionLog *os.File
	configLog  *os.File
}

// OpenFileStore opens (or creates) the log directory and replays the logs.
func OpenFileStore(dir string, defaultMode registry.Mode) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	fs := &FileStore{mem: NewMemoryStore(defaultMode)}

	var err error
	if fs.schemaLog, err = fs.replaySchemas(filepath.Join(dir, schemaLogFile)); err != nil {
		return nil, err
	}
	if fs.versionLog, err = fs.replayVersions(filepath.Join(dir, versionLogFile)); err != nil {
		fs.schemaLog.Close()
		return nil, err
	}
	if fs.configLog, err = fs.replayConfigs(filepath.Join(dir, configLogFile)); err != nil {
		fs.schemaLog.Close()
		fs.versionLog.Close()
		return nil, err
	}

	slog.Info("[FileStore] Recovered registry state", "dir", dir)
	return fs, nil
}

func (f *FileStore) replaySchemas(path string) (*os.File, error) {
	return replayLog(path, func(line []byte) error {
		var rec schemaRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		f.mem.restoreSchema(registry.Schema{
			ID:          rec.ID,
			Format:      rec.Format,
			Fingerprint: rec.Fingerprint,
			Canonical:   rec.Canonical,
			Raw:         rec.Raw,
			CreatedAt:   rec.CreatedAt,
		})
		return nil
	})
}

func (f *FileStore) replayVersions(path string) (*os.File, error) {
	return replayLog(path, func(line []byte) error {
		var rec versionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		subject, err := registry.ParseScopeKey(rec.Subject)
		if err != nil {
			return err
		}
		f.mem.restoreVersion(registry.Version{
			Subject:  subject,
			Number:   rec.Version,
			SchemaID: rec.SchemaID,
			Deleted:  rec.Deleted,
		})
		return nil
	})
}

func (f *FileStore) replayConfigs(path string) (*os.File, error) {
	return replayLog(path, func(line []byte) error {
		var rec configRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		f.mem.restoreConfig(rec.Subject, rec.Mode, rec.Cleared)
		return nil
	})
}

// replayLog feeds every line of the log to apply, then reopens the file for
// appending. A corrupt line aborts recovery rather than silently dropping
// state.
func replayLog(path string, apply func(line []byte) error) (*os.File, error) {
	existing, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(existing)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			if err := apply(line); err != nil {
				existing.Close()
				return nil, fmt.Errorf("corrupt log %s line %d: %w", path, lineNo, err)
			}
		}
		if err := scanner.Err(); err != nil {
			existing.Close()
			return nil, fmt.Errorf("failed to read log %s: %w", path, err)
		}
		existing.Close()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}

	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// append writes one record and syncs before the mutation is acknowledged.
func (f *FileStore) append(log *os.File, rec interface{}) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return &registry.InternalError{Op: "encode log record", Err: err}
	}
	line = append(line, '\n')
	if _, err := log.Write(line); err != nil {
		return &registry.InternalError{Op: "append log record", Err: err}
	}
	if err := log.Sync(); err != nil {
		return &registry.InternalError{Op: "sync log", Err: err}
	}
	return nil
}

func (f *FileStore) PutSchema(ctx context.Context, format registry.Format, fingerprint, canonical, raw string) (*registry.Schema, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, created, err := f.mem.PutSchema(ctx, format, fingerprint, canonical, raw)
	if err != nil || !created {
		return s, created, err
	}
	if err := f.append(f.schemaLog, schemaRecord{
		ID:          s.ID,
		Format:      s.Format,
		Fingerprint: s.Fingerprint,
		Canonical:   s.Canonical,
		Raw:         s.Raw,
		CreatedAt:   s.CreatedAt,
	}); err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func (f *FileStore) SchemaByID(ctx context.Context, id int64) (*registry.Schema, error) {
	return f.mem.SchemaByID(ctx, id)
}

func (f *FileStore) SchemaByFingerprint(ctx context.Context, fingerprint string) (*registry.Schema, error) {
	return f.mem.SchemaByFingerprint(ctx, fingerprint)
}

func (f *FileStore) AppendVersion(ctx context.Context, subject registry.Subject, schemaID int64) (*registry.Version, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.mem.AppendVersion(ctx, subject, schemaID)
	if err != nil {
		return v, err
	}
	if err := f.append(f.versionLog, versionRecord{
		Subject:  subject.ScopeKey(),
		Version:  v.Number,
		SchemaID: v.SchemaID,
	}); err != nil {
		return nil, err
	}
	return v, nil
}

func (f *FileStore) ListVersions(ctx context.Context, subject registry.Subject) ([]int, error) {
	return f.mem.ListVersions(ctx, subject)
}

func (f *FileStore) Versions(ctx context.Context, subject registry.Subject) ([]*registry.Version, error) {
	return f.mem.Versions(ctx, subject)
}

func (f *FileStore) GetVersion(ctx context.Context, subject registry.Subject, number int) (*registry.Version, error) {
	return f.mem.GetVersion(ctx, subject, number)
}

func (f *FileStore) LatestVersion(ctx context.Context, subject registry.Subject) (*registry.Version, error) {
	return f.mem.LatestVersion(ctx, subject)
}

func (f *FileStore) VersionBySchemaID(ctx context.Context, subject registry.Subject, schemaID int64) (*registry.Version, error) {
	return f.mem.VersionBySchemaID(ctx, subject, schemaID)
}

func (f *FileStore) SoftDeleteVersion(ctx context.Context, subject registry.Subject, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, err := f.mem.GetVersion(ctx, subject, number)
	if err != nil {
		return err
	}
	if err := f.mem.SoftDeleteVersion(ctx, subject, number); err != nil {
		return err
	}
	return f.append(f.versionLog, versionRecord{
		Subject:  subject.ScopeKey(),
		Version:  number,
		SchemaID: v.SchemaID,
		Deleted:  true,
	})
}

func (f *FileStore) DeleteSubject(ctx context.Context, subject registry.Subject) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	versions, err := f.mem.Versions(ctx, subject)
	if err == registry.ErrSubjectNotFound {
		return []int{}, nil
	}
	if err != nil {
		return nil, err
	}

	deleted, err := f.mem.DeleteSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if err := f.append(f.versionLog, versionRecord{
			Subject:  subject.ScopeKey(),
			Version:  v.Number,
			SchemaID: v.SchemaID,
			Deleted:  true,
		}); err != nil {
			return nil, err
		}
	}
	return deleted, nil
}

func (f *FileStore) ListSubjects(ctx context.Context) ([]string, error) {
	return f.mem.ListSubjects(ctx)
}

func (f *FileStore) GlobalMode(ctx context.Context) (registry.Mode, error) {
	return f.mem.GlobalMode(ctx)
}

func (f *FileStore) SetGlobalMode(ctx context.Context, mode registry.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.SetGlobalMode(ctx, mode); err != nil {
		return err
	}
	return f.append(f.configLog, configRecord{Mode: mode})
}

func (f *FileStore) SubjectMode(ctx context.Context, subject registry.Subject) (registry.Mode, bool, error) {
	return f.mem.SubjectMode(ctx, subject)
}

func (f *FileStore) SetSubjectMode(ctx context.Context, subject registry.Subject, mode registry.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.SetSubjectMode(ctx, subject, mode); err != nil {
		return err
	}
	return f.append(f.configLog, configRecord{Subject: subject.ScopeKey(), Mode: mode})
}

func (f *FileStore) ClearSubjectMode(ctx context.Context, subject registry.Subject) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.ClearSubjectMode(ctx, subject); err != nil {
		return err
	}
	return f.append(f.configLog, configRecord{Subject: subject.ScopeKey(), Cleared: true})
}

func (f *FileStore) Ping(ctx context.Context) error {
	return nil
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, log := range []*os.File{f.schemaLog, f.versionLog, f.configLog} {
		if log == nil {
			continue
		}
		if err := log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
