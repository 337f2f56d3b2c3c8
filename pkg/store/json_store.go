package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
)

const (
	booksFile = "books.json"
	usersFile = "users.json"
)

// JSONStore keeps books and users as pretty-printed JSON arrays on disk,
// rewriting the whole file on every mutation. One mutex serializes each
// read-modify-write; there is no cross-process coordination.
type JSONStore struct {
	mu  sync.Mutex
	dir string
}

// NewJSONStore creates the data directory and seeds empty collections when
// the files are missing.
func NewJSONStore(dir string) (*JSONStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &JSONStore{dir: dir}
	for _, name := range []string{booksFile, usersFile} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
				return nil, fmt.Errorf("seed %s: %w", name, err)
			}
		}
	}
	return s, nil
}

func readCollection[T any](s *JSONStore, name string) ([]T, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, &StorageError{Op: "read " + name, Err: err}
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &StorageError{Op: "decode " + name, Err: err}
	}
	return items, nil
}

// writeCollection replaces the file wholesale. It writes to a temp file in
// the same directory and renames it over the target, so a failed write
// leaves the prior state intact.
func writeCollection[T any](s *JSONStore, name string, items []T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode " + name, Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return &StorageError{Op: "write " + name, Err: err}
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &StorageError{Op: "write " + name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &StorageError{Op: "write " + name, Err: err}
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return &StorageError{Op: "replace " + name, Err: err}
	}
	return nil
}

// CreateBook validates the draft, assigns max existing id + 1 (1 when the
// collection is empty) and persists the full updated collection.
func (s *JSONStore) CreateBook(_ context.Context, draft BookDraft) (domain.Book, error) {
	if err := validateDraft(draft); err != nil {
		return domain.Book{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	books, err := readCollection[domain.Book](s, booksFile)
	if err != nil {
		return domain.Book{}, err
	}
	id := 1
	for _, b := range books {
		if b.ID >= id {
			id = b.ID + 1
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
	books = append(books, book)
	if err := writeCollection(s, booksFile, books); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// GetBook returns the exact-match record; an absent id is not an error.
func (s *JSONStore) GetBook(_ context.Context, id int) (domain.Book, bool, error) {
	if id <= 0 {
		return domain.Book{}, false, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	books, err := readCollection[domain.Book](s, booksFile)
	if err != nil {
		return domain.Book{}, false, err
	}
	for _, b := range books {
		if b.ID == id {
			return b, true, nil
		}
	}
	return domain.Book{}, false, nil
}

// UpdateBook loads the record, overlays only the supplied fields and
// persists the collection.
func (s *JSONStore) UpdateBook(_ context.Context, id int, patch BookPatch) (domain.Book, error) {
	if id <= 0 {
		return domain.Book{}, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	if err := validatePatch(patch); err != nil {
		return domain.Book{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	books, err := readCollection[domain.Book](s, booksFile)
	if err != nil {
		return domain.Book{}, err
	}
	idx := -1
	for i, b := range books {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.Book{}, &NotFoundError{Resource: "book", ID: id}
	}
	books[idx] = applyPatch(books[idx], patch)
	if err := writeCollection(s, booksFile, books); err != nil {
		return domain.Book{}, err
	}
	return books[idx], nil
}

// DeleteBook removes exactly one record; every other record is rewritten
// byte-identical.
func (s *JSONStore) DeleteBook(_ context.Context, id int) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	books, err := readCollection[domain.Book](s, booksFile)
	if err != nil {
		return err
	}
	kept := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(books) {
		return &NotFoundError{Resource: "book", ID: id}
	}
	return writeCollection(s, booksFile, kept)
}

// ScanBooks is a linear scan over the whole collection.
func (s *JSONStore) ScanBooks(_ context.Context, filter BookFilter, order BookOrder) ([]domain.Book, error) {
	s.mu.Lock()
	books, err := readCollection[domain.Book](s, booksFile)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if matchesFilter(b, filter) {
			res = append(res, b)
		}
	}
	orderBooks(res, order)
	return res, nil
}

// GetUserByEmail scans users.json for an exact email match.
func (s *JSONStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := readCollection[domain.User](s, usersFile)
	if err != nil {
		return domain.User{}, false, err
	}
	for _, u := range users {
		if u.Email == email {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

// GetUserByID scans users.json for an exact id match.
func (s *JSONStore) GetUserByID(_ context.Context, id int) (domain.User, bool, error) {
	if id <= 0 {
		return domain.User{}, false, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := readCollection[domain.User](s, usersFile)
	if err != nil {
		return domain.User{}, false, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

// UpdateUser overlays the supplied profile fields and persists the
// collection.
func (s *JSONStore) UpdateUser(_ context.Context, id int, patch UserPatch) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := readCollection[domain.User](s, usersFile)
	if err != nil {
		return domain.User{}, err
	}
	idx := -1
	for i, u := range users {
		if u.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.User{}, &NotFoundError{Resource: "user", ID: id}
	}
	user := users[idx]
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Image != nil {
		user.Image = *patch.Image
	}
	users[idx] = user
	if err := writeCollection(s, usersFile, users); err != nil {
		return domain.User{}, err
	}
	return user, nil
}
