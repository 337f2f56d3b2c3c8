package store

import (
	"context"
	"sync"

	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
)

// MemoryStore keeps books and users in-process. Used by tests and as a
// zero-setup development backend.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[int]domain.Book
	order  []int // insertion order of book ids
	users  map[int]domain.User
	emails map[string]int // email -> user id
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:  make(map[int]domain.Book),
		users:  make(map[int]domain.User),
		emails: make(map[string]int),
	}
}

// SeedUsers loads users wholesale, replacing any existing set.
func (m *MemoryStore) SeedUsers(users []domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[int]domain.User, len(users))
	m.emails = make(map[string]int, len(users))
	for _, u := range users {
		m.users[u.ID] = u
		m.emails[u.Email] = u.ID
	}
}

// CreateBook assigns the next id and stores the record.
func (m *MemoryStore) CreateBook(_ context.Context, draft BookDraft) (domain.Book, error) {
	if err := validateDraft(draft); err != nil {
		return domain.Book{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := 1
	for existing := range m.books {
		if existing >= id {
			id = existing + 1
		}
	}
	book := domain.Book{
		ID:          id,
		Title:       draft.Title,
		Description: draft.Description,
		Author:      draft.Author,
		Category:    draft.Category,
		Price:       round2(draft.Price),
		OwnerID:     draft.OwnerID,
		Thumbnail:   draft.Thumbnail,
	}
	m.books[id] = book
	m.order = append(m.order, id)
	return book, nil
}

// GetBook retrieves a book by id.
func (m *MemoryStore) GetBook(_ context.Context, id int) (domain.Book, bool, error) {
	if id <= 0 {
		return domain.Book{}, false, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// UpdateBook overlays the supplied fields onto the stored record.
func (m *MemoryStore) UpdateBook(_ context.Context, id int, patch BookPatch) (domain.Book, error) {
	if id <= 0 {
		return domain.Book{}, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	if err := validatePatch(patch); err != nil {
		return domain.Book{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[id]
	if !ok {
		return domain.Book{}, &NotFoundError{Resource: "book", ID: id}
	}
	book = applyPatch(book, patch)
	m.books[id] = book
	return book, nil
}

// DeleteBook removes the exact-match record.
func (m *MemoryStore) DeleteBook(_ context.Context, id int) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return &NotFoundError{Resource: "book", ID: id}
	}
	delete(m.books, id)
	kept := m.order[:0]
	for _, existing := range m.order {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	m.order = kept
	return nil
}

// ScanBooks returns every matching record, ordered as requested.
func (m *MemoryStore) ScanBooks(_ context.Context, filter BookFilter, order BookOrder) ([]domain.Book, error) {
	m.mu.RLock()
	res := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		if b, ok := m.books[id]; ok && matchesFilter(b, filter) {
			res = append(res, b)
		}
	}
	m.mu.RUnlock()
	orderBooks(res, order)
	return res, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.emails[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by id.
func (m *MemoryStore) GetUserByID(_ context.Context, id int) (domain.User, bool, error) {
	if id <= 0 {
		return domain.User{}, false, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// UpdateUser overlays the supplied profile fields.
func (m *MemoryStore) UpdateUser(_ context.Context, id int, patch UserPatch) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, &NotFoundError{Resource: "user", ID: id}
	}
	delete(m.emails, user.Email)
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Image != nil {
		user.Image = *patch.Image
	}
	m.users[id] = user
	m.emails[user.Email] = id
	return user, nil
}
