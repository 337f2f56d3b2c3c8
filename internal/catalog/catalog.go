// Package catalog turns request parameters into a deterministic,
// reproducible page of book results.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
	"github.com/AbdalrahmanMG/book-shop/pkg/store"
)

// DefaultPageSize is used when the caller does not say otherwise.
const DefaultPageSize = 10

// Sort selects the title ordering of a query.
type Sort string

const (
	SortNone Sort = "none"
	SortAsc  Sort = "asc"
	SortDesc Sort = "desc"
)

// ParseSort maps a raw query value to a Sort, defaulting to none.
func ParseSort(raw string) Sort {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asc":
		return SortAsc
	case "desc":
		return SortDesc
	default:
		return SortNone
	}
}

// Params describes one catalog query. Zero values fall back to defaults:
// page 1, DefaultPageSize, no search, no sort, no owner/category filter.
type Params struct {
	Page     int
	PageSize int
	Search   string
	Sort     Sort
	OwnerID  *int
	Category string // ""/"all" = no filter
}

// Page is one bounded slice of the filtered, sorted result set.
type Page struct {
	Items      []domain.Book `json:"items"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

// BookScanner is the slice of store.Store the catalog needs.
type BookScanner interface {
	ScanBooks(ctx context.Context, filter store.BookFilter, order store.BookOrder) ([]domain.Book, error)
}

// Service produces catalog pages. It only ever reads from the store.
type Service struct {
	books BookScanner
	log   *slog.Logger
}

// NewService wires the catalog over a book scanner.
func NewService(books BookScanner, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{books: books, log: log}
}

// Query filters, sorts and slices the whole matching set before
// pagination, so a page never mixes unfiltered records and page N is
// reproducible for fixed params over an unchanged collection.
//
// Read failures deliberately degrade to an empty page with total 0 instead
// of propagating, keeping listing callers resilient; mutations elsewhere
// never get this leniency.
func (s *Service) Query(ctx context.Context, params Params) Page {
	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	filter := store.BookFilter{
		OwnerID:       params.OwnerID,
		TitleContains: strings.TrimSpace(params.Search),
	}
	if c := strings.TrimSpace(params.Category); c != "" && !strings.EqualFold(c, "all") {
		filter.Category = domain.Category(c)
	}

	order := store.OrderNone
	switch params.Sort {
	case SortAsc:
		order = store.OrderTitleAsc
	case SortDesc:
		order = store.OrderTitleDesc
	}

	books, err := s.books.ScanBooks(ctx, filter, order)
	if err != nil {
		s.log.Error("catalog scan failed, returning empty page", "err", err)
		return Page{Items: []domain.Book{}}
	}

	total := len(books)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start >= total {
		return Page{Items: []domain.Book{}, Total: total, TotalPages: totalPages}
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	items := make([]domain.Book, end-start)
	copy(items, books[start:end])
	return Page{Items: items, Total: total, TotalPages: totalPages}
}
