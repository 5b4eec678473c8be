package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liunix61/uptane-server/internal/domain"
)

type memNamespaces struct {
	mu       sync.Mutex
	rows     map[string]domain.Namespace
	metadata map[string][]domain.Metadata
}

func newMemNamespaces() *memNamespaces {
	return &memNamespaces{rows: map[string]domain.Namespace{}, metadata: map[string][]domain.Metadata{}}
}

func (m *memNamespaces) CreateWithMetadata(_ context.Context, ns *domain.Namespace, docs []domain.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns.ID == "" {
		ns.ID = uuid.NewString()
	}
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = time.Now().UTC()
	}
	ns.UpdatedAt = ns.CreatedAt
	seen := map[string]bool{}
	for _, doc := range docs {
		k := fmt.Sprintf("%s/%s/%d", doc.Repo, doc.Role, doc.Version)
		if seen[k] {
			return fmt.Errorf("duplicate metadata %s", k)
		}
		if !json.Valid(doc.Document) {
			return fmt.Errorf("metadata %s is not valid json", k)
		}
		seen[k] = true
	}
	stored := make([]domain.Metadata, 0, len(docs))
	for _, doc := range docs {
		doc.NamespaceID = ns.ID
		doc.CreatedAt = ns.CreatedAt
		stored = append(stored, doc)
	}
	m.rows[ns.ID] = *ns
	m.metadata[ns.ID] = stored
	return nil
}

func (m *memNamespaces) Get(_ context.Context, id string) (*domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ns, nil
}

func (m *memNamespaces) List(_ context.Context) ([]domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Namespace, 0, len(m.rows))
	for _, ns := range m.rows {
		out = append(out, ns)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memNamespaces) ListStale(_ context.Context, status domain.NamespaceStatus, cutoff time.Time) ([]domain.Namespace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Namespace
	for _, ns := range m.rows {
		if ns.Status == status && ns.UpdatedAt.Before(cutoff) {
			out = append(out, ns)
		}
	}
	return out, nil
}

func (m *memNamespaces) SetStatus(_ context.Context, id string, status domain.NamespaceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	ns.Status = status
	ns.UpdatedAt = time.Now().UTC()
	m.rows[id] = ns
	return nil
}

func (m *memNamespaces) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	delete(m.metadata, id)
	return nil
}

func (m *memNamespaces) LatestMetadata(_ context.Context, namespaceID string, repo domain.RepoKind, role domain.Role) (*domain.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Metadata
	for _, md := range m.metadata[namespaceID] {
		if md.Repo == repo && md.Role == role && (latest == nil || md.Version > latest.Version) {
			md := md
			latest = &md
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

func (m *memNamespaces) metadataCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.metadata[id])
}

type memObjects struct {
	mu   sync.Mutex
	rows map[string]domain.Object
}

func newMemObjects() *memObjects {
	return &memObjects{rows: map[string]domain.Object{}}
}

func objectKey(ns, id string) string { return ns + "\x00" + id }

func (m *memObjects) Upsert(_ context.Context, obj domain.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[objectKey(obj.NamespaceID, obj.ObjectID)] = obj
	return nil
}

func (m *memObjects) SetStatus(_ context.Context, ns, id string, status domain.ObjectStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.rows[objectKey(ns, id)]
	if !ok {
		return domain.ErrNotFound
	}
	obj.Status = status
	m.rows[objectKey(ns, id)] = obj
	return nil
}

func (m *memObjects) Get(_ context.Context, ns, id string) (*domain.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.rows[objectKey(ns, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &obj, nil
}

func (m *memObjects) ListByNamespace(_ context.Context, ns string) ([]domain.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Object
	for _, obj := range m.rows {
		if obj.NamespaceID == ns {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (m *memObjects) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// memBlobs is a flat key/value blob store without containers, like S3.
type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	failPut error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (b *memBlobs) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	if b.failPut != nil {
		return b.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, 0, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *memBlobs) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// failingKeys wraps a KeyStore and fails every Put after the first n.
type failingKeys struct {
	KeyStore
	allow int
	puts  int
}

func (f *failingKeys) Put(ctx context.Context, rec domain.KeyRecord) error {
	f.puts++
	if f.puts > f.allow {
		return fmt.Errorf("key store unavailable")
	}
	return f.KeyStore.Put(ctx, rec)
}
