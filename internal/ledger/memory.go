package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by the dev
// server when no DATABASE_URL is configured. A single mutex makes
// every append atomic with respect to reads.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // by id
	entries  []*JournalEntry
	byID     map[string]*JournalEntry
	seq      int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byID:     make(map[string]*JournalEntry),
	}
}

func (m *MemoryStore) CreateAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.RestaurantID == a.RestaurantID && existing.Code == a.Code {
			return &accountExistsError{code: a.Code}
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

type accountExistsError struct{ code string }

func (e *accountExistsError) Error() string {
	return "account code " + e.code + " already exists"
}

func (m *MemoryStore) GetAccount(ctx context.Context, restaurantID, code string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.RestaurantID == restaurantID && a.Code == code {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *MemoryStore) AccountByID(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, restaurantID string) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Account
	for _, a := range m.accounts {
		if a.RestaurantID == restaurantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) AppendEntry(ctx context.Context, e *JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.SourceID != "" {
		for _, existing := range m.entries {
			if existing.RestaurantID == e.RestaurantID && existing.Source == e.Source && existing.SourceID == e.SourceID {
				return &DuplicateEntryError{Source: e.Source, SourceID: e.SourceID, ExistingID: existing.ID}
			}
		}
	}
	m.seq++
	e.Seq = m.seq
	cp := *e
	cp.Lines = append([]Line(nil), e.Lines...)
	m.entries = append(m.entries, &cp)
	m.byID[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetEntry(ctx context.Context, restaurantID, id string) (*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[id]
	if !ok || e.RestaurantID != restaurantID {
		return nil, ErrEntryNotFound
	}
	cp := *e
	cp.Lines = append([]Line(nil), e.Lines...)
	return &cp, nil
}

func (m *MemoryStore) FindBySource(ctx context.Context, restaurantID string, source SourceType, sourceID string) (*JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.RestaurantID == restaurantID && e.Source == source && e.SourceID == sourceID {
			cp := *e
			cp.Lines = append([]Line(nil), e.Lines...)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) Lines(ctx context.Context, restaurantID string, f LineFilter) ([]PostedLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []PostedLine
	for _, e := range m.entries {
		if e.RestaurantID != restaurantID || !f.matchSource(e.Source) || !f.Period.Contains(e.OccurredAt) {
			continue
		}
		for _, l := range e.Lines {
			a, ok := m.accounts[l.AccountID]
			if !ok || !f.matchType(a.Type) || !f.matchCode(a.Code) {
				continue
			}
			out = append(out, PostedLine{
				EntryID:     e.ID,
				EntrySeq:    e.Seq,
				OccurredAt:  e.OccurredAt,
				Source:      e.Source,
				AccountID:   a.ID,
				AccountCode: a.Code,
				AccountType: a.Type,
				Side:        l.Side,
				Amount:      l.Amount,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].EntrySeq < out[j].EntrySeq
	})
	return out, nil
}
