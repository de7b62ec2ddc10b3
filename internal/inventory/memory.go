package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryStockStore is an in-process StockStore for tests and the dev
// server.
type MemoryStockStore struct {
	mu    sync.RWMutex
	moves []StockLedgerEntry
}

// NewMemoryStockStore creates an empty in-memory stock store.
func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{}
}

func (m *MemoryStockStore) AppendMovement(ctx context.Context, e *StockLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves = append(m.moves, *e)
	return nil
}

func (m *MemoryStockStore) Movements(ctx context.Context, productID string) ([]StockLedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StockLedgerEntry
	for _, mv := range m.moves {
		if mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// MemoryCatalog is an in-process Catalog for tests and the dev server.
// Production deployments adapt the tenant's real product catalog.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]*Product // by id
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[string]*Product)}
}

// PutProduct registers a product.
func (m *MemoryCatalog) PutProduct(p *Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
}

func (m *MemoryCatalog) GetProduct(ctx context.Context, restaurantID, productID string) (*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[productID]
	if !ok || p.RestaurantID != restaurantID {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// LoadFile replaces the catalog contents with the products in a JSON
// file (an array of Product objects).
func (m *MemoryCatalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = make(map[string]*Product, len(products))
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
	}
	return nil
}

// MemorySessionStore is an in-process SessionStore. The mutex is the
// lock table: open-session exclusivity and version checks run under it
// atomically.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.ProductID == s.ProductID && !existing.Terminal() {
			return &SessionConflictError{
				ProductID: s.ProductID,
				Reason:    "count already in progress",
			}
		}
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemorySessionStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	if s.CountedQty != nil {
		q := *s.CountedQty
		cp.CountedQty = &q
	}
	return &cp, nil
}

func (m *MemorySessionStore) UpdateSession(ctx context.Context, s *Session, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return &SessionConflictError{
			ProductID: s.ProductID,
			SessionID: s.ID,
			Reason:    "session was modified concurrently",
		}
	}
	cp := *s
	if s.CountedQty != nil {
		q := *s.CountedQty
		cp.CountedQty = &q
	}
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemorySessionStore) OpenSessionForProduct(ctx context.Context, productID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ProductID == productID && !s.Terminal() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemorySessionStore) History(ctx context.Context, productID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.ProductID == productID && s.Terminal() {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}
