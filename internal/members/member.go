// Package members stores the member records exposed through the get/create/
// update/delete member tools.
//
// Two implementations are provided: [PostgresStore] for production use and
// [MemStore] for tests and for running the tool server without a database.
// Both apply the same filter, sort and pagination semantics.
package members

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Defaults applied on create.
const (
	DefaultRole   = "user"
	DefaultStatus = "active"
)

// List defaults and limits.
const (
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "created_at"
)

// SortColumns are the member columns List may sort by.
var SortColumns = []string{"id", "name", "email", "role", "status", "created_at"}

var (
	// ErrNotFound is returned when no member has the requested ID.
	ErrNotFound = errors.New("members: not found")

	// ErrDuplicateEmail is returned when a create or update would reuse an
	// email address already held by another member.
	ErrDuplicateEmail = errors.New("members: email already in use")

	// ErrInvalid is returned for invalid input such as an empty name.
	ErrInvalid = errors.New("members: invalid input")
)

// Member is one record.
type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects and orders members for [Store.List].
type Filter struct {
	// Role, when set, matches the role exactly.
	Role string

	// Search, when set, matches a case-insensitive substring of either the
	// name or the email.
	Search string

	Limit  int
	Offset int

	// Sort is one of [SortColumns]. Empty selects [DefaultSort].
	Sort string

	// Desc orders descending.
	Desc bool
}

// Normalize applies defaults and bounds to f. It returns an error wrapping
// [ErrInvalid] when Sort is not an allowed column.
func (f Filter) Normalize() (Filter, error) {
	if f.Sort == "" {
		f.Sort = DefaultSort
	}
	f.Sort = strings.ToLower(f.Sort)
	if !slices.Contains(SortColumns, f.Sort) {
		return Filter{}, fmt.Errorf("%w: sort column %q is not one of %s", ErrInvalid, f.Sort, strings.Join(SortColumns, ", "))
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	f.Limit = min(f.Limit, MaxLimit)
	f.Offset = max(f.Offset, 0)
	return f, nil
}

// Patch holds the fields to change in [Store.Update]. Empty strings are left
// unchanged.
type Patch struct {
	Name   string
	Email  string
	Role   string
	Status string
}

// IsEmpty reports whether p changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == "" && p.Email == "" && p.Role == "" && p.Status == ""
}

func (p Patch) apply(m *Member) {
	if p.Name != "" {
		m.Name = p.Name
	}
	if p.Email != "" {
		m.Email = p.Email
	}
	if p.Role != "" {
		m.Role = p.Role
	}
	if p.Status != "" {
		m.Status = p.Status
	}
}

// Store is the member persistence interface.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// List returns the members matching f.
	List(ctx context.Context, f Filter) ([]Member, error)

	// Get returns the member with id, or (nil, nil) if none exists.
	Get(ctx context.Context, id string) (*Member, error)

	// Create inserts m, filling in ID, CreatedAt and the role and status
	// defaults. Name and email are required.
	Create(ctx context.Context, m *Member) error

	// Update applies p to the member with id and returns the updated record.
	// It returns [ErrNotFound] if the member does not exist.
	Update(ctx context.Context, id string, p Patch) (*Member, error)

	// Delete removes the member with id and returns the deleted record.
	// It returns [ErrNotFound] if the member does not exist.
	Delete(ctx context.Context, id string) (*Member, error)
}

// prepare validates m and applies create defaults.
func prepare(m *Member) error {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if m.Email == "" {
		errs = append(errs, errors.New("email must not be empty"))
	} else if !strings.Contains(m.Email, "@") {
		errs = append(errs, fmt.Errorf("email %q is not an address", m.Email))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	if m.Role == "" {
		m.Role = DefaultRole
	}
	if m.Status == "" {
		m.Status = DefaultStatus
	}
	return nil
}
