package vecstore

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process store with the same semantics as the SQLite
// implementation. It backs tests and throwaway runs where nothing should
// touch disk.
type Memory struct {
	mu     sync.RWMutex
	owners map[string]map[string]Record // ownerID -> chunkID -> record
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{owners: make(map[string]map[string]Record)}
}

func (m *Memory) Upsert(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		ns := m.owners[r.OwnerID]
		if ns == nil {
			ns = make(map[string]Record)
			m.owners[r.OwnerID] = ns
		}
		r.Vector = append([]float32(nil), r.Vector...)
		ns[r.ChunkID] = r
	}
	return nil
}

func (m *Memory) DeleteDocument(_ context.Context, ownerID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.owners[ownerID] {
		if r.DocumentID == documentID {
			delete(m.owners[ownerID], id)
		}
	}
	return nil
}

func (m *Memory) DeleteChunks(_ context.Context, ownerID string, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range chunkIDs {
		delete(m.owners[ownerID], id)
	}
	return nil
}

func (m *Memory) DeleteNamespace(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owners, ownerID)
	return nil
}

func (m *Memory) DocumentChunkIDs(_ context.Context, ownerID, documentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, r := range m.owners[ownerID] {
		if r.DocumentID == documentID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Query(_ context.Context, q Query) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var allowed map[string]struct{}
	if len(q.Documents) > 0 {
		allowed = make(map[string]struct{}, len(q.Documents))
		for _, id := range q.Documents {
			allowed[id] = struct{}{}
		}
	}

	var matches []Match
	for _, r := range m.owners[q.OwnerID] {
		if q.Topic != "" && r.Topic != q.Topic {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[r.DocumentID]; !ok {
				continue
			}
		}
		matches = append(matches, Match{
			OwnerID:    r.OwnerID,
			DocumentID: r.DocumentID,
			ChunkID:    r.ChunkID,
			Topic:      r.Topic,
			StartSeq:   r.StartSeq,
			EndSeq:     r.EndSeq,
			Text:       r.Text,
			Score:      dot(r.Vector, q.Vector),
		})
	}
	return rank(matches, q.TopK), nil
}

func (m *Memory) Close() error { return nil }
