package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/authgate/auth-core/internal/clock"
)

// MemoryStore implements Store in process memory. It exists for tests and
// single-node development profiles; family mutation is serialized by a
// single mutex rather than store-level atomics.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	records  map[string]*Record
	families map[string]map[string]struct{} // familyID -> jtis
	users    map[string]map[string]struct{} // username -> jtis
	consumed map[string]time.Time           // jti -> marker expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System()
	}
	return &MemoryStore{
		clock:    c,
		records:  make(map[string]*Record),
		families: make(map[string]map[string]struct{}),
		users:    make(map[string]map[string]struct{}),
		consumed: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[rec.JTI] = &cp

	if s.families[rec.FamilyID] == nil {
		s.families[rec.FamilyID] = make(map[string]struct{})
	}
	s.families[rec.FamilyID][rec.JTI] = struct{}{}

	if s.users[rec.Username] == nil {
		s.users[rec.Username] = make(map[string]struct{})
	}
	s.users[rec.Username][rec.JTI] = struct{}{}
	return nil
}

func (s *MemoryStore) FindByJti(ctx context.Context, jti string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jti]
	if !ok || !rec.ExpiresAt.After(s.clock.Now()) {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[jti]; ok {
		rec.Revoked = true
	}
	return nil
}

func (s *MemoryStore) RevokeFamily(ctx context.Context, familyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti := range s.families[familyID] {
		if rec, ok := s.records[jti]; ok {
			rec.Revoked = true
		}
	}
	return nil
}

func (s *MemoryStore) DeleteAllForUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jti := range s.users[username] {
		s.drop(jti)
	}
	delete(s.users, username)
	return nil
}

func (s *MemoryStore) FindAllForUser(ctx context.Context, username string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var jtis []string
	for jti := range s.users[username] {
		rec, ok := s.records[jti]
		if ok && rec.ExpiresAt.After(now) {
			jtis = append(jtis, jti)
		}
	}
	return jtis, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for jti, rec := range s.records {
		if !rec.ExpiresAt.After(before) {
			s.drop(jti)
			n++
		}
	}
	for jti, exp := range s.consumed {
		if !exp.After(before) {
			delete(s.consumed, jti)
		}
	}
	return n, nil
}

func (s *MemoryStore) Consume(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if exp, ok := s.consumed[jti]; ok && exp.After(now) {
		return false, nil
	}
	s.consumed[jti] = expiresAt
	return true, nil
}

// drop removes a record and its index entries. Caller holds the lock.
func (s *MemoryStore) drop(jti string) {
	rec, ok := s.records[jti]
	if !ok {
		return
	}
	delete(s.records, jti)
	if fam := s.families[rec.FamilyID]; fam != nil {
		delete(fam, jti)
		if len(fam) == 0 {
			delete(s.families, rec.FamilyID)
		}
	}
	if u := s.users[rec.Username]; u != nil {
		delete(u, jti)
		if len(u) == 0 {
			delete(s.users, rec.Username)
		}
	}
}
