package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AbdalrahmanMG/book-shop/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &BookModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateBook assigns max existing id + 1 inside a transaction, matching
// the id semantics of the file-backed variant.
func (s *GormStore) CreateBook(ctx context.Context, draft BookDraft) (domain.Book, error) {
	if err := validateDraft(draft); err != nil {
		return domain.Book{}, err
	}
	var model BookModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxID int
		if err := tx.Model(&BookModel{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
			return err
		}
		model = BookModel{
			ID:          maxID + 1,
			Title:       draft.Title,
			Description: draft.Description,
			Author:      draft.Author,
			Category:    string(draft.Category),
			Price:       round2(draft.Price),
			OwnerID:     draft.OwnerID,
			Thumbnail:   draft.Thumbnail,
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Book{}, &StorageError{Op: "insert book", Err: err}
	}
	return bookFromModel(model), nil
}

// GetBook retrieves a book; an absent id is reported via ok, not an error.
func (s *GormStore) GetBook(ctx context.Context, id int) (domain.Book, bool, error) {
	if id <= 0 {
		return domain.Book{}, false, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	var model BookModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, &StorageError{Op: "select book", Err: err}
	}
	return bookFromModel(model), true, nil
}

// UpdateBook loads the row, overlays the supplied fields and saves it.
func (s *GormStore) UpdateBook(ctx context.Context, id int, patch BookPatch) (domain.Book, error) {
	if id <= 0 {
		return domain.Book{}, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	if err := validatePatch(patch); err != nil {
		return domain.Book{}, err
	}
	var updated domain.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model BookModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return err
		}
		updated = applyPatch(bookFromModel(model), patch)
		model = bookToModel(updated)
		return tx.Save(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, &NotFoundError{Resource: "book", ID: id}
		}
		return domain.Book{}, &StorageError{Op: "update book", Err: err}
	}
	return updated, nil
}

// DeleteBook removes exactly one row.
func (s *GormStore) DeleteBook(ctx context.Context, id int) error {
	if id <= 0 {
		return &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	res := s.db.WithContext(ctx).Delete(&BookModel{}, "id = ?", id)
	if res.Error != nil {
		return &StorageError{Op: "delete book", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Resource: "book", ID: id}
	}
	return nil
}

// ScanBooks pushes the filter down to SQL. Ordering is by title with id as
// tiebreaker, so ties keep insertion order (ids are monotonic).
func (s *GormStore) ScanBooks(ctx context.Context, filter BookFilter, order BookOrder) ([]domain.Book, error) {
	tx := s.db.WithContext(ctx).Model(&BookModel{})
	if filter.OwnerID != nil {
		tx = tx.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Category != "" {
		tx = tx.Where("category = ?", string(filter.Category))
	}
	if filter.TitleContains != "" {
		tx = tx.Where("title ILIKE ?", "%"+escapeLike(filter.TitleContains)+"%")
	}
	switch order {
	case OrderTitleAsc:
		tx = tx.Order("title ASC, id ASC")
	case OrderTitleDesc:
		tx = tx.Order("title DESC, id DESC")
	default:
		tx = tx.Order("id ASC")
	}
	var models []BookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, &StorageError{Op: "scan books", Err: err}
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, &StorageError{Op: "select user", Err: err}
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by id.
func (s *GormStore) GetUserByID(ctx context.Context, id int) (domain.User, bool, error) {
	if id <= 0 {
		return domain.User{}, false, &ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, &StorageError{Op: "select user", Err: err}
	}
	return userFromModel(model), true, nil
}

// UpdateUser overlays the supplied profile fields.
func (s *GormStore) UpdateUser(ctx context.Context, id int, patch UserPatch) (domain.User, error) {
	var updated domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model UserModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return err
		}
		user := userFromModel(model)
		if patch.Name != nil {
			user.Name = *patch.Name
		}
		if patch.Email != nil {
			user.Email = *patch.Email
		}
		if patch.Image != nil {
			user.Image = *patch.Image
		}
		updated = user
		model = userToModel(user)
		return tx.Save(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, &NotFoundError{Resource: "user", ID: id}
		}
		return domain.User{}, &StorageError{Op: "update user", Err: err}
	}
	return updated, nil
}

// escapeLike neutralizes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Author:      b.Author,
		Category:    string(b.Category),
		Price:       b.Price,
		OwnerID:     b.OwnerID,
		Thumbnail:   b.Thumbnail,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Author:      m.Author,
		Category:    domain.Category(m.Category),
		Price:       m.Price,
		OwnerID:     m.OwnerID,
		Thumbnail:   m.Thumbnail,
	}
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Password: u.Password,
		Image:    u.Image,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:       m.ID,
		Name:     m.Name,
		Email:    m.Email,
		Password: m.Password,
		Image:    m.Image,
	}
}
