package service

import (
	"context"
	"log/slog"
	"net/mail"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
	"github.com/shopspring/decimal"
)

const defaultLatestBooks = 5

// CatalogService serves sale-book listings.
type CatalogService struct {
	books repository.BookRepository
}

func NewCatalogService(books repository.BookRepository) *CatalogService {
	return &CatalogService{books: books}
}

func (s *CatalogService) List(ctx context.Context) ([]entity.SaleBook, error) {
	books, err := s.books.FindAll(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list books")
	}
	return books, nil
}

// Latest returns the n most recently posted books, five by default.
func (s *CatalogService) Latest(ctx context.Context, n int) ([]entity.SaleBook, error) {
	if n <= 0 {
		n = defaultLatestBooks
	}
	books, err := s.books.FindLatest(ctx, n)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list latest books")
	}
	return books, nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*entity.SaleBook, error) {
	b, err := s.books.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load book")
	}
	return b, nil
}

// Update applies a partial update to a book and returns the stored result.
func (s *CatalogService) Update(ctx context.Context, id int64, patch repository.Patch) (*entity.SaleBook, error) {
	if err := patch.Validate(repository.BookColumns); err != nil {
		return nil, apperr.New(apperr.InvalidInput, err.Error())
	}
	if err := validateBookPatch(patch); err != nil {
		return nil, err
	}
	if err := s.books.Update(ctx, id, patch); err != nil {
		return nil, apperr.Wrap(err, "failed to update book")
	}
	slog.Info("Book updated", "sale_book_id", id, "fields", len(patch))
	return s.Get(ctx, id)
}

var maxDiscount = decimal.NewFromInt(100)

func validateBookPatch(patch repository.Patch) error {
	for _, a := range patch {
		switch a.Field {
		case "quantity":
			if q, ok := a.Value.(int); !ok || q < 0 {
				return apperr.New(apperr.InvalidInput, "quantity must be a non-negative integer")
			}
		case "price":
			if p, ok := a.Value.(decimal.Decimal); !ok || p.IsNegative() {
				return apperr.New(apperr.InvalidInput, "price must be a non-negative amount")
			}
		case "discount":
			if d, ok := a.Value.(decimal.Decimal); !ok || d.IsNegative() || d.GreaterThan(maxDiscount) {
				return apperr.New(apperr.InvalidInput, "discount must be between 0 and 100")
			}
		case "title":
			if t, ok := a.Value.(string); !ok || t == "" {
				return apperr.New(apperr.InvalidInput, "title cannot be empty")
			}
		case "status":
			if st, ok := a.Value.(string); !ok || (st != entity.BookStatusAvailable && st != entity.BookStatusHidden) {
				return apperr.New(apperr.InvalidInput, "status must be available or hidden")
			}
		}
	}
	return nil
}

// UserService reads and updates user profiles.
type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load user")
	}
	return u, nil
}

func (s *UserService) Update(ctx context.Context, id int64, patch repository.Patch) (*entity.User, error) {
	if err := patch.Validate(repository.UserColumns); err != nil {
		return nil, apperr.New(apperr.InvalidInput, err.Error())
	}
	if v, ok := patch.Lookup("email"); ok {
		email, _ := v.(string)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperr.New(apperr.InvalidInput, "email is not a valid address")
		}
	}
	if v, ok := patch.Lookup("role"); ok {
		if r, _ := v.(string); r != string(entity.RoleAdmin) && r != string(entity.RoleClient) {
			return nil, apperr.New(apperr.InvalidInput, "role must be admin or client")
		}
	}
	if err := s.users.Update(ctx, id, patch); err != nil {
		return nil, apperr.Wrap(err, "failed to update user")
	}
	slog.Info("User updated", "user_id", id, "fields", len(patch))
	return s.Get(ctx, id)
}
