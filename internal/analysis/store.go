package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"spendscore-service/pkg/errors"
)

// ResultStore persists analysis records. Implementations must be safe for
// concurrent use; the batch analyzer saves from several workers at once.
type ResultStore interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Latest returns the most recently saved record.
	Latest(ctx context.Context) (*Record, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]*Record, error)
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	latest  string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Save(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return errors.StorageError(errors.CodeStoreFailed, record.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.records[record.ID] = &copied
	m.latest = record.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeRecordNotFound, id, nil)
	}
	copied := *rec
	return &copied, nil
}

func (m *MemoryStore) Latest(ctx context.Context) (*Record, error) {
	m.mu.RLock()
	id := m.latest
	m.mu.RUnlock()
	if id == "" {
		return nil, errors.StorageError(errors.CodeRecordNotFound, "", nil)
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) List(_ context.Context) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		copied := *rec
		out = append(out, &copied)
	}
	sortNewestFirst(out)
	return out, nil
}

const latestFile = "latest.json"

// FileStore keeps one JSON document per record under a directory, plus a
// copy of the most recent record in latest.json.
type FileStore struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir on fs, creating dir if needed
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "store.dir", "", nil)
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.StorageError(errors.CodeStoreFailed, "", err).
			WithContext("store_dir", dir)
	}
	return &FileStore{fs: fs, dir: dir}, nil
}

// Dir returns the store directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) recordPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Save(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return errors.StorageError(errors.CodeStoreFailed, record.ID, err)
	}
	if _, err := uuid.Parse(record.ID); err != nil {
		return errors.StorageError(errors.CodeStoreFailed, record.ID, err).
			WithSuggestion("record IDs must be UUIDs")
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return errors.StorageError(errors.CodeStoreFailed, record.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(s.recordPath(record.ID), data); err != nil {
		return errors.StorageError(errors.CodeStoreFailed, record.ID, err)
	}
	if err := s.writeFile(filepath.Join(s.dir, latestFile), data); err != nil {
		return errors.StorageError(errors.CodeStoreFailed, record.ID, err)
	}
	return nil
}

// writeFile writes through a temporary file and renames it into place
func (s *FileStore) writeFile(name string, data []byte) error {
	tmp := name + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.StorageError(errors.CodeRecordNotFound, id, err)
	}
	return s.read(s.recordPath(id), id)
}

func (s *FileStore) Latest(_ context.Context) (*Record, error) {
	return s.read(filepath.Join(s.dir, latestFile), "")
}

func (s *FileStore) List(_ context.Context) ([]*Record, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreFailed, "", err).WithContext("store_dir", s.dir)
	}

	var out []*Record
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || name == latestFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		rec, err := s.read(filepath.Join(s.dir, name), id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *FileStore) read(name, id string) (*Record, error) {
	data, err := afero.ReadFile(s.fs, name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.StorageError(errors.CodeRecordNotFound, id, err)
		}
		return nil, errors.StorageError(errors.CodeStoreFailed, id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.StorageError(errors.CodeStoreFailed, id, err).
			WithSuggestion("the stored record is corrupt; re-run the analysis")
	}
	return &rec, nil
}

func sortNewestFirst(records []*Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
