package webui

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxArtifacts bounds the in-memory download store; the oldest entry is
// evicted first.
const maxArtifacts = 16

type artifact struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Partial bool      `json:"partial"`
	Created time.Time `json:"created"`
	text    string
}

type artifactStore struct {
	mu    sync.Mutex
	limit int
	order []uuid.UUID
	items map[uuid.UUID]*artifact
}

func newArtifactStore(limit int) *artifactStore {
	return &artifactStore{limit: limit, items: make(map[uuid.UUID]*artifact)}
}

func (s *artifactStore) put(name, text string, partial bool) *artifact {
	id := uuid.New()
	a := &artifact{
		ID:      id,
		Name:    name,
		URL:     "/api/artifacts/" + id.String(),
		Partial: partial,
		Created: time.Now(),
		text:    text,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.order) >= s.limit {
		delete(s.items, s.order[0])
		s.order = s.order[1:]
	}
	s.items[a.ID] = a
	s.order = append(s.order, a.ID)
	return a
}

func (s *artifactStore) get(id uuid.UUID) (*artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	return a, ok
}
