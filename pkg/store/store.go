package store

import (
	"context"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
)

// Store defines persistence operations for books and users.
//
// Mutations surface typed errors (*ValidationError, *NotFoundError,
// *StorageError); absent records on reads are reported with the ok flag,
// not an error. A failed mutation leaves the prior durable state intact.
type Store interface {
	// books
	CreateBook(ctx context.Context, draft BookDraft) (domain.Book, error)
	GetBook(ctx context.Context, id int) (domain.Book, bool, error)
	UpdateBook(ctx context.Context, id int, patch BookPatch) (domain.Book, error)
	DeleteBook(ctx context.Context, id int) error
	ScanBooks(ctx context.Context, filter BookFilter, order BookOrder) ([]domain.Book, error)

	// users
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id int) (domain.User, bool, error)
	UpdateUser(ctx context.Context, id int, patch UserPatch) (domain.User, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID int) (string, error)
	GetUserIDByToken(token string) (int, bool, error)
	DeleteSession(token string) error
}

// BookDraft carries the fields of a book to be created. The store assigns
// the id: max existing id + 1, or 1 on an empty collection.
type BookDraft struct {
	Title       string
	Description string
	Author      string
	Category    domain.Category
	Price       float64
	OwnerID     int
	Thumbnail   string
}

// BookPatch is a partial update. Nil means "keep the existing value";
// a non-nil pointer replaces the field, so an omitted field is never
// confused with an explicitly cleared one.
type BookPatch struct {
	Title       *string
	Description *string
	Author      *string
	Category    *domain.Category
	Price       *float64
	Thumbnail   *string
}

// UserPatch is a partial profile update with the same nil-means-keep rule.
type UserPatch struct {
	Name  *string
	Email *string
	Image *string
}

// BookFilter narrows a scan. Zero values mean "no filter".
type BookFilter struct {
	OwnerID       *int
	TitleContains string          // case-insensitive substring on title
	Category      domain.Category // empty = all categories
}

// BookOrder selects the scan ordering.
type BookOrder int

const (
	OrderNone BookOrder = iota // insertion order
	OrderTitleAsc
	OrderTitleDesc
)

func validateDraft(draft BookDraft) error {
	if strings.TrimSpace(draft.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(draft.Description) == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if strings.TrimSpace(draft.Author) == "" {
		return &ValidationError{Field: "author", Reason: "must not be empty"}
	}
	if !draft.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "unknown category"}
	}
	if draft.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	if draft.OwnerID <= 0 {
		return &ValidationError{Field: "ownerId", Reason: "must be a positive integer"}
	}
	return nil
}

func validatePatch(patch BookPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return &ValidationError{Field: "description", Reason: "must not be empty"}
	}
	if patch.Author != nil && strings.TrimSpace(*patch.Author) == "" {
		return &ValidationError{Field: "author", Reason: "must not be empty"}
	}
	if patch.Category != nil && !patch.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "unknown category"}
	}
	if patch.Price != nil && *patch.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	return nil
}

// applyPatch overlays the supplied fields onto book, keeping all others.
func applyPatch(book domain.Book, patch BookPatch) domain.Book {
	if patch.Title != nil {
		book.Title = *patch.Title
	}
	if patch.Description != nil {
		book.Description = *patch.Description
	}
	if patch.Author != nil {
		book.Author = *patch.Author
	}
	if patch.Category != nil {
		book.Category = *patch.Category
	}
	if patch.Price != nil {
		book.Price = round2(*patch.Price)
	}
	if patch.Thumbnail != nil {
		book.Thumbnail = *patch.Thumbnail
	}
	return book
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func matchesFilter(b domain.Book, filter BookFilter) bool {
	if filter.OwnerID != nil && b.OwnerID != *filter.OwnerID {
		return false
	}
	if filter.Category != "" && b.Category != filter.Category {
		return false
	}
	if filter.TitleContains != "" &&
		!strings.Contains(strings.ToLower(b.Title), strings.ToLower(filter.TitleContains)) {
		return false
	}
	return true
}

// titleCollator gives locale-aware title comparison, matching what callers
// see from a browser's localeCompare.
var titleCollator = collate.New(language.English)

// orderBooks sorts in place. The sort is stable: equal titles keep their
// original relative (insertion) order.
func orderBooks(books []domain.Book, order BookOrder) {
	switch order {
	case OrderTitleAsc:
		sort.SliceStable(books, func(i, j int) bool {
			return titleCollator.CompareString(books[i].Title, books[j].Title) < 0
		})
	case OrderTitleDesc:
		sort.SliceStable(books, func(i, j int) bool {
			return titleCollator.CompareString(books[i].Title, books[j].Title) > 0
		})
	}
}
