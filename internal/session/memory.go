package session

import (
	"context"
	"sync"

	"github.com/ashendes/checkout-engine/internal/models"
)

// MemoryStore keeps sessions in process memory. Entries never expire.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
	carts  map[string][]models.CartLineItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]State),
		carts:  make(map[string][]models.CartLineItem),
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[id], nil
}

func (s *MemoryStore) Save(_ context.Context, id string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = st
	return nil
}

func (s *MemoryStore) Cart(id string) Cart {
	return &memoryCart{store: s, id: id}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

type memoryCart struct {
	store *MemoryStore
	id    string
}

func (c *memoryCart) Items(context.Context) ([]models.CartLineItem, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	items := c.store.carts[c.id]
	out := make([]models.CartLineItem, len(items))
	copy(out, items)
	return out, nil
}

func (c *memoryCart) AddItem(_ context.Context, item models.CartLineItem) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.carts[c.id] = mergeItem(c.store.carts[c.id], item)
	return nil
}

func (c *memoryCart) RemoveAllItems(context.Context) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.carts, c.id)
	return nil
}
