// Package store provides the persistence backends for the registry: an
// in-memory store, a durable append-only file store and a PostgreSQL store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/schemahub/registry/internal/registry"
)

// MemoryStore is an in-memory implementation of registry.Store.
// Useful for testing and development.
type MemoryStore struct {
	mu sync.RWMutex

	nextID        int64
	byID          map[int64]*registry.Schema
	byFingerprint map[string]int64

	// subjects keeps every version row, soft-deleted included, so version
	// numbers are never handed out twice.
	subjects map[string][]*registry.Version

	globalMode registry.Mode
	overrides  map[string]registry.Mode
}

// NewMemoryStore creates an in-memory store with the given global default
// compatibility mode.
func NewMemoryStore(defaultMode registry.Mode) *MemoryStore {
	return &MemoryStore{
		nextID:        1,
		byID:          make(map[int64]*registry.Schema),
		byFingerprint: make(map[string]int64),
		subjects:      make(map[string][]*registry.Version),
		globalMode:    defaultMode,
		overrides:     make(map[string]registry.Mode),
	}
}

func (m *MemoryStore) PutSchema(ctx context.Context, format registry.Format, fingerprint, canonical, raw string) (*registry.Schema, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, exists := m.byFingerprint[fingerprint]; exists {
		s := *m.byID[id]
		return &s, false, nil
	}

	s := &registry.Schema{
		ID:          m.nextID,
		Format:      format,
		Fingerprint: fingerprint,
		Canonical:   canonical,
		Raw:         raw,
		CreatedAt:   time.Now().UTC(),
	}
	m.nextID++
	m.byID[s.ID] = s
	m.byFingerprint[fingerprint] = s.ID

	out := *s
	return &out, true, nil
}

func (m *MemoryStore) SchemaByID(ctx context.Context, id int64) (*registry.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.byID[id]
	if !exists {
		return nil, registry.ErrSchemaIDNotFound
	}
	out := *s
	return &out, nil
}

func (m *MemoryStore) SchemaByFingerprint(ctx context.Context, fingerprint string) (*registry.Schema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.byFingerprint[fingerprint]
	if !exists {
		return nil, registry.ErrSchemaIDNotFound
	}
	out := *m.byID[id]
	return &out, nil
}

func (m *MemoryStore) AppendVersion(ctx context.Context, subject registry.Subject, schemaID int64) (*registry.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subject.ScopeKey()
	rows := m.subjects[key]

	for _, v := range rows {
		if !v.Deleted && v.SchemaID == schemaID {
			out := *v
			return &out, registry.ErrAlreadyExists
		}
	}

	next := 1
	if n := len(rows); n > 0 {
		next = rows[n-1].Number + 1
	}

	v := &registry.Version{Subject: subject, Number: next, SchemaID: schemaID}
	m.subjects[key] = append(rows, v)

	out := *v
	return &out, nil
}

func (m *MemoryStore) ListVersions(ctx context.Context, subject registry.Subject) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var numbers []int
	for _, v := range m.subjects[subject.ScopeKey()] {
		if !v.Deleted {
			numbers = append(numbers, v.Number)
		}
	}
	if len(numbers) == 0 {
		return nil, registry.ErrSubjectNotFound
	}
	return numbers, nil
}

func (m *MemoryStore) Versions(ctx context.Context, subject registry.Subject) ([]*registry.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*registry.Version
	for _, v := range m.subjects[subject.ScopeKey()] {
		if !v.Deleted {
			c := *v
			out = append(out, &c)
		}
	}
	if len(out) == 0 {
		return nil, registry.ErrSubjectNotFound
	}
	return out, nil
}

func (m *MemoryStore) GetVersion(ctx context.Context, subject registry.Subject, number int) (*registry.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.subjects[subject.ScopeKey()]
	if !hasLive(rows) {
		return nil, registry.ErrSubjectNotFound
	}
	for _, v := range rows {
		if v.Number == number {
			if v.Deleted {
				return nil, registry.ErrVersionNotFound
			}
			out := *v
			return &out, nil
		}
	}
	return nil, registry.ErrVersionNotFound
}

func (m *MemoryStore) LatestVersion(ctx context.Context, subject registry.Subject) (*registry.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.subjects[subject.ScopeKey()]
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].Deleted {
			out := *rows[i]
			return &out, nil
		}
	}
	return nil, registry.ErrSubjectNotFound
}

func (m *MemoryStore) VersionBySchemaID(ctx context.Context, subject registry.Subject, schemaID int64) (*registry.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.subjects[subject.ScopeKey()] {
		if !v.Deleted && v.SchemaID == schemaID {
			out := *v
			return &out, nil
		}
	}
	return nil, registry.ErrVersionNotFound
}

func (m *MemoryStore) SoftDeleteVersion(ctx context.Context, subject registry.Subject, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.subjects[subject.ScopeKey()] {
		if v.Number == number {
			if v.Deleted {
				return registry.ErrVersionDeleted
			}
			v.Deleted = true
			return nil
		}
	}
	return registry.ErrVersionNotFound
}

func (m *MemoryStore) DeleteSubject(ctx context.Context, subject registry.Subject) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := []int{}
	for _, v := range m.subjects[subject.ScopeKey()] {
		if !v.Deleted {
			v.Deleted = true
			deleted = append(deleted, v.Number)
		}
	}
	return deleted, nil
}

func (m *MemoryStore) ListSubjects(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := []string{}
	for key, rows := range m.subjects {
		if hasLive(rows) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) GlobalMode(ctx context.Context) (registry.Mode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.globalMode, nil
}

func (m *MemoryStore) SetGlobalMode(ctx context.Context, mode registry.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalMode = mode
	return nil
}

func (m *MemoryStore) SubjectMode(ctx context.Context, subject registry.Subject) (registry.Mode, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mode, ok := m.overrides[subject.ScopeKey()]
	return mode, ok, nil
}

func (m *MemoryStore) SetSubjectMode(ctx context.Context, subject registry.Subject, mode registry.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[subject.ScopeKey()] = mode
	return nil
}

func (m *MemoryStore) ClearSubjectMode(ctx context.Context, subject registry.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, subject.ScopeKey())
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// restoreSchema replays a schema log record during recovery. Ids in the log
// are authoritative; the id counter continues past the highest one seen.
func (m *MemoryStore) restoreSchema(s registry.Schema) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := s
	m.byID[s.ID] = &c
	m.byFingerprint[s.Fingerprint] = s.ID
	if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
}

// restoreVersion replays a version log record. A later record for the same
// (subject, number) supersedes an earlier one, which is how soft-delete
// tombstones take effect.
func (m *MemoryStore) restoreVersion(v registry.Version) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := v.Subject.ScopeKey()
	rows := m.subjects[key]
	for _, row := range rows {
		if row.Number == v.Number {
			row.SchemaID = v.SchemaID
			row.Deleted = v.Deleted
			return
		}
	}
	c := v
	rows = append(rows, &c)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Number < rows[j].Number })
	m.subjects[key] = rows
}

// restoreConfig replays a config log record. An empty scope key targets the
// global default.
func (m *MemoryStore) restoreConfig(scopeKey string, mode registry.Mode, cleared bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if scopeKey == "" {
		if !cleared {
			m.globalMode = mode
		}
		return
	}
	if cleared {
		delete(m.overrides, scopeKey)
		return
	}
	m.overrides[scopeKey] = mode
}

func hasLive(rows []*registry.Version) bool {
	for _, v := range rows {
		if !v.Deleted {
			return true
		}
	}
	return false
}
