// Package app wires the book-shop domain logic: sessions, listings and
// thumbnail uploads over pluggable stores.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AbdalrahmanMG/book-shop/internal/catalog"
	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
	"github.com/AbdalrahmanMG/book-shop/pkg/storage"
	"github.com/AbdalrahmanMG/book-shop/pkg/store"
)

// Config wires required dependencies for the application core.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	Images   storage.ImageStore
	Logger   *slog.Logger
}

// App is the core application service.
type App struct {
	store    store.Store
	sessions store.SessionStore
	images   storage.ImageStore
	catalog  *catalog.Service
	validate *validator.Validate
	log      *slog.Logger
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Images == nil {
		return nil, fmt.Errorf("image store is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &App{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		images:   cfg.Images,
		catalog:  catalog.NewService(cfg.Store, log.With("component", "catalog")),
		validate: validator.New(),
		log:      log,
	}, nil
}

// Catalog exposes the query service for read paths.
func (a *App) Catalog() *catalog.Service { return a.catalog }

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// Login checks credentials by equality and opens a session, returning the
// safe user projection and the opaque session token.
func (a *App) Login(ctx context.Context, email, password string) (domain.SafeUser, string, error) {
	in := loginInput{Email: strings.TrimSpace(email), Password: password}
	if err := a.validate.Struct(in); err != nil {
		return domain.SafeUser{}, "", ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return domain.SafeUser{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || user.Password != in.Password {
		return domain.SafeUser{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.SafeUser{}, "", fmt.Errorf("open session: %w", err)
	}
	return user.Safe(), token, nil
}

// Logout destroys the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// CurrentUser resolves a session token to the safe user projection. A
// token whose user no longer resolves is destroyed and treated as logged
// out, never as an error.
func (a *App) CurrentUser(ctx context.Context, token string) (domain.SafeUser, bool) {
	if token == "" {
		return domain.SafeUser{}, false
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		a.log.Error("resolve session", "err", err)
		return domain.SafeUser{}, false
	}
	if !ok {
		return domain.SafeUser{}, false
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil || !ok {
		if err != nil {
			a.log.Error("load session user", "err", err)
		}
		_ = a.sessions.DeleteSession(token)
		return domain.SafeUser{}, false
	}
	return user.Safe(), true
}

type profileInput struct {
	Name  string `validate:"required,max=120"`
	Email string `validate:"required,email"`
}

// UpdateProfile changes the user's name and email.
func (a *App) UpdateProfile(ctx context.Context, userID int, name, email string) (domain.SafeUser, error) {
	in := profileInput{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if err := a.validate.Struct(in); err != nil {
		return domain.SafeUser{}, validationError(err)
	}
	user, err := a.store.UpdateUser(ctx, userID, store.UserPatch{Name: &in.Name, Email: &in.Email})
	if err != nil {
		return domain.SafeUser{}, err
	}
	return user.Safe(), nil
}

// Upload carries a thumbnail file as received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// BookInput is the raw add-book form. Price arrives as a string and must
// be a positive amount with at most 2 fractional digits.
type BookInput struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"required,max=2000"`
	Author      string `validate:"required,max=120"`
	Category    string `validate:"required"`
	Price       string `validate:"required"`
}

var priceRx = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// AddBook validates the form, uploads the thumbnail (if any) and creates
// the listing owned by ownerID. An upload failure aborts before any record
// write.
func (a *App) AddBook(ctx context.Context, ownerID int, in BookInput, thumb *Upload) (domain.Book, error) {
	if err := a.validate.Struct(in); err != nil {
		return domain.Book{}, validationError(err)
	}
	category := domain.Category(strings.TrimSpace(in.Category))
	if !category.Valid() {
		return domain.Book{}, &store.ValidationError{Field: "category", Reason: fmt.Sprintf("invalid category %q", in.Category)}
	}
	price, err := parsePrice(in.Price)
	if err != nil {
		return domain.Book{}, err
	}

	thumbnail := ""
	if thumb != nil {
		thumbnail, err = a.images.SaveImage(ctx, thumb.Filename, thumb.ContentType, thumb.Reader, thumb.Size)
		if err != nil {
			return domain.Book{}, err
		}
	}
	return a.store.CreateBook(ctx, store.BookDraft{
		Title:       in.Title,
		Description: in.Description,
		Author:      in.Author,
		Category:    category,
		Price:       price,
		OwnerID:     ownerID,
		Thumbnail:   thumbnail,
	})
}

// BookPatchInput is the raw update form: nil means the field was omitted
// and keeps its stored value.
type BookPatchInput struct {
	Title       *string `validate:"omitempty,max=200"`
	Description *string `validate:"omitempty,max=2000"`
	Author      *string `validate:"omitempty,max=120"`
	Category    *string
	Price       *string
}

// UpdateBook overlays the supplied fields onto the listing. Only the owner
// may update; the thumbnail is replaced only when a new image is supplied.
func (a *App) UpdateBook(ctx context.Context, userID, bookID int, in BookPatchInput, thumb *Upload) (domain.Book, error) {
	if err := a.ownedBy(ctx, userID, bookID); err != nil {
		return domain.Book{}, err
	}
	if err := a.validate.Struct(in); err != nil {
		return domain.Book{}, validationError(err)
	}
	patch := store.BookPatch{
		Title:       in.Title,
		Description: in.Description,
		Author:      in.Author,
	}
	if in.Category != nil {
		category := domain.Category(strings.TrimSpace(*in.Category))
		if !category.Valid() {
			return domain.Book{}, &store.ValidationError{Field: "category", Reason: fmt.Sprintf("invalid category %q", *in.Category)}
		}
		patch.Category = &category
	}
	if in.Price != nil {
		price, err := parsePrice(*in.Price)
		if err != nil {
			return domain.Book{}, err
		}
		patch.Price = &price
	}
	if thumb != nil {
		url, err := a.images.SaveImage(ctx, thumb.Filename, thumb.ContentType, thumb.Reader, thumb.Size)
		if err != nil {
			return domain.Book{}, err
		}
		patch.Thumbnail = &url
	}
	return a.store.UpdateBook(ctx, bookID, patch)
}

// DeleteBook removes the listing. Only the owner may delete.
func (a *App) DeleteBook(ctx context.Context, userID, bookID int) error {
	if err := a.ownedBy(ctx, userID, bookID); err != nil {
		return err
	}
	return a.store.DeleteBook(ctx, bookID)
}

// GetBook retrieves a single listing. Unlike catalog queries, read
// failures here propagate to the caller.
func (a *App) GetBook(ctx context.Context, id int) (domain.Book, bool, error) {
	return a.store.GetBook(ctx, id)
}

// ListBooks runs one catalog query.
func (a *App) ListBooks(ctx context.Context, params catalog.Params) catalog.Page {
	return a.catalog.Query(ctx, params)
}

func (a *App) ownedBy(ctx context.Context, userID, bookID int) error {
	book, ok, err := a.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !ok {
		return &store.NotFoundError{Resource: "book", ID: bookID}
	}
	if book.OwnerID != userID {
		return ErrForbidden
	}
	return nil
}

func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if !priceRx.MatchString(raw) {
		return 0, &store.ValidationError{Field: "price", Reason: "must be a valid amount like 10.00"}
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, &store.ValidationError{Field: "price", Reason: "must be positive"}
	}
	return price, nil
}

// validationError maps the first validator failure onto the store error
// taxonomy so callers see one consistent shape.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return &store.ValidationError{
			Field:  strings.ToLower(first.Field()),
			Reason: fmt.Sprintf("failed %q constraint", first.Tag()),
		}
	}
	return &store.ValidationError{Field: "input", Reason: err.Error()}
}
