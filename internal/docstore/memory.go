package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
)

// Memory is an in-process DocumentStore.
type Memory struct {
	hub *Hub
	now func() time.Time

	mu     sync.Mutex
	seq    uint64
	tables map[string]map[string]*memDoc
}

type memDoc struct {
	stored domain.Stored
	seq    uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory(log *zap.SugaredLogger) *Memory {
	return &Memory{
		hub:    NewHub(log),
		now:    time.Now,
		tables: make(map[string]map[string]*memDoc),
	}
}

func (m *Memory) Get(_ context.Context, table, id string) (domain.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.tables[table][id]
	if !ok {
		return domain.Stored{}, fmt.Errorf("%s/%s: %w", table, id, domain.ErrDocumentNotFound)
	}
	return copyStored(d.stored), nil
}

func (m *Memory) Set(_ context.Context, table, id string, doc domain.Document) error {
	m.mu.Lock()
	kind := m.write(table, id, clone(doc))
	c := m.change(table, id, kind)
	m.mu.Unlock()
	m.hub.Publish(c)
	return nil
}

func (m *Memory) Update(_ context.Context, table, id string, patch domain.Document) error {
	m.mu.Lock()
	d, ok := m.tables[table][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", table, id, domain.ErrDocumentNotFound)
	}
	m.write(table, id, merge(d.stored.Data, clone(patch)))
	c := m.change(table, id, domain.ChangeUpdate)
	m.mu.Unlock()
	m.hub.Publish(c)
	return nil
}

func (m *Memory) Insert(_ context.Context, table string, doc domain.Document) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.write(table, id, clone(doc))
	c := m.change(table, id, domain.ChangeInsert)
	m.mu.Unlock()
	m.hub.Publish(c)
	return id, nil
}

func (m *Memory) Find(_ context.Context, table string, filter domain.Filter) ([]domain.Stored, error) {
	m.mu.Lock()
	docs := make([]*memDoc, 0, len(m.tables[table]))
	for _, d := range m.tables[table] {
		if matches(d.stored.Data, filter) {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].seq < docs[j].seq })
	out := make([]domain.Stored, 0, len(docs))
	for _, d := range docs {
		out = append(out, copyStored(d.stored))
	}
	m.mu.Unlock()
	return out, nil
}

func (m *Memory) TakeOne(_ context.Context, table, id, field string, pick domain.Pick) (json.RawMessage, bool, error) {
	m.mu.Lock()
	d, ok := m.tables[table][id]
	if !ok {
		m.mu.Unlock()
		return nil, false, fmt.Errorf("%s/%s: %w", table, id, domain.ErrDocumentNotFound)
	}
	item, next, ok, err := takeFrom(d.stored.Data, field, pick)
	if err != nil || !ok {
		m.mu.Unlock()
		return nil, false, err
	}
	m.write(table, id, next)
	c := m.change(table, id, domain.ChangeUpdate)
	m.mu.Unlock()
	m.hub.Publish(c)
	return item, true, nil
}

func (m *Memory) Append(_ context.Context, table, id, field string, items []json.RawMessage) error {
	m.mu.Lock()
	d, ok := m.tables[table][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", table, id, domain.ErrDocumentNotFound)
	}
	next, err := appendTo(d.stored.Data, field, items)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.write(table, id, next)
	c := m.change(table, id, domain.ChangeUpdate)
	m.mu.Unlock()
	m.hub.Publish(c)
	return nil
}

func (m *Memory) Delete(_ context.Context, table, id string) error {
	m.mu.Lock()
	d, ok := m.tables[table][id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.tables[table], id)
	c := domain.Change{Table: table, Kind: domain.ChangeDelete, ID: id, Data: clone(d.stored.Data)}
	m.mu.Unlock()
	m.hub.Publish(c)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, table string, filter domain.Filter) (domain.Subscription, error) {
	return m.hub.Subscribe(ctx, table, filter), nil
}

// write stores doc and reports whether it created or replaced a document.
// The caller holds mu.
func (m *Memory) write(table, id string, doc domain.Document) domain.ChangeKind {
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]*memDoc)
		m.tables[table] = t
	}
	now := m.now().UTC()
	if d, ok := t[id]; ok {
		d.stored.Data = doc
		d.stored.UpdatedAt = now
		return domain.ChangeUpdate
	}
	m.seq++
	t[id] = &memDoc{
		stored: domain.Stored{ID: id, Data: doc, CreatedAt: now, UpdatedAt: now},
		seq:    m.seq,
	}
	return domain.ChangeInsert
}

// change builds the notification for a document. The caller holds mu.
func (m *Memory) change(table, id string, kind domain.ChangeKind) domain.Change {
	return domain.Change{Table: table, Kind: kind, ID: id, Data: clone(m.tables[table][id].stored.Data)}
}

func copyStored(s domain.Stored) domain.Stored {
	s.Data = clone(s.Data)
	return s
}

// Compile-time assertion that Memory implements domain.DocumentStore.
var _ domain.DocumentStore = (*Memory)(nil)
