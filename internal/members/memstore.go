package members

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory [Store]. The zero value is ready to use.
type MemStore struct {
	mu      sync.RWMutex
	members map[string]Member
	now     func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a MemStore seeded with the given members.
func NewMemStore(seed ...Member) *MemStore {
	s := &MemStore{members: make(map[string]Member, len(seed))}
	for _, m := range seed {
		s.members[m.ID] = m
	}
	return s
}

func (s *MemStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// List implements [Store].
func (s *MemStore) List(_ context.Context, f Filter) ([]Member, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(f.Search)

	s.mu.RLock()
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		if f.Role != "" && m.Role != f.Role {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.Email), search) {
			continue
		}
		out = append(out, m)
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b Member) int {
		c := compareBy(f.Sort, a, b)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if f.Desc {
			return -c
		}
		return c
	})

	if f.Offset >= len(out) {
		return []Member{}, nil
	}
	end := min(f.Offset+f.Limit, len(out))
	return out[f.Offset:end], nil
}

func compareBy(col string, a, b Member) int {
	switch col {
	case "id":
		return cmp.Compare(a.ID, b.ID)
	case "name":
		return cmp.Compare(a.Name, b.Name)
	case "email":
		return cmp.Compare(a.Email, b.Email)
	case "role":
		return cmp.Compare(a.Role, b.Role)
	case "status":
		return cmp.Compare(a.Status, b.Status)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// Create implements [Store].
func (s *MemStore) Create(_ context.Context, m *Member) error {
	if err := prepare(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members == nil {
		s.members = make(map[string]Member)
	}
	if s.emailTaken(m.Email, "") {
		return ErrDuplicateEmail
	}
	m.ID = uuid.NewString()
	m.CreatedAt = s.clock()
	s.members[m.ID] = *m
	return nil
}

// Update implements [Store].
func (s *MemStore) Update(_ context.Context, id string, p Patch) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Email != "" && s.emailTaken(p.Email, id) {
		return nil, ErrDuplicateEmail
	}
	p.apply(&m)
	s.members[id] = m
	return &m, nil
}

// Delete implements [Store].
func (s *MemStore) Delete(_ context.Context, id string) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.members, id)
	return &m, nil
}

// emailTaken must be called with mu held.
func (s *MemStore) emailTaken(email, exceptID string) bool {
	for id, m := range s.members {
		if id != exceptID && strings.EqualFold(m.Email, email) {
			return true
		}
	}
	return false
}
