package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
	"github.com/shopspring/decimal"
)

type UserRepository struct{ s *Store }

func (r *UserRepository) Exists(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.users[id]
	return ok, nil
}

func (r *UserRepository) FindByID(_ context.Context, id int64) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "user %d not found", id)
	}
	return &u, nil
}

func (r *UserRepository) Update(_ context.Context, id int64, patch repository.Patch) error {
	if err := patch.Validate(repository.UserColumns); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return apperr.Newf(apperr.NotFound, "user %d not found", id)
	}
	for _, a := range patch {
		v, ok := a.Value.(string)
		if !ok {
			return fmt.Errorf("field %s: expected string, got %T", a.Field, a.Value)
		}
		switch a.Field {
		case "first_name":
			u.FirstName = v
		case "last_name":
			u.LastName = v
		case "email":
			u.Email = v
		case "phone_number":
			u.PhoneNumber = v
		case "floor":
			u.Floor = v
		case "building":
			u.Building = v
		case "street":
			u.Street = v
		case "city":
			u.City = v
		case "additional_description":
			u.AdditionalDescription = v
		case "role":
			u.Role = entity.Role(v)
		}
	}
	r.s.users[id] = u
	return nil
}

type BookRepository struct{ s *Store }

func (r *BookRepository) withGenre(b entity.SaleBook) entity.SaleBook {
	if g, ok := r.s.genres[b.GenreID]; ok {
		b.GenreName = g.Name
	}
	return b
}

func (r *BookRepository) FindAll(_ context.Context) ([]entity.SaleBook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	books := sortedBooks(r.s.books)
	for i := range books {
		books[i] = r.withGenre(books[i])
	}
	return books, nil
}

func (r *BookRepository) FindLatest(_ context.Context, limit int) ([]entity.SaleBook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	books := sortedBooks(r.s.books)
	sort.SliceStable(books, func(i, j int) bool { return books[i].PostDate.After(books[j].PostDate) })
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	for i := range books {
		books[i] = r.withGenre(books[i])
	}
	return books, nil
}

func (r *BookRepository) FindByID(_ context.Context, id int64) (*entity.SaleBook, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.books[id]
	if !ok {
		return nil, apperr.ForItem(apperr.NotFound, id, "book %d not found", id)
	}
	b = r.withGenre(b)
	return &b, nil
}

func (r *BookRepository) Update(_ context.Context, id int64, patch repository.Patch) error {
	if err := patch.Validate(repository.BookColumns); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.books[id]
	if !ok {
		return apperr.ForItem(apperr.NotFound, id, "book %d not found", id)
	}
	for _, a := range patch {
		if err := applyBookField(&b, a); err != nil {
			return err
		}
	}
	r.s.books[id] = b
	return nil
}

func applyBookField(b *entity.SaleBook, a repository.Assignment) error {
	var ok bool
	switch a.Field {
	case "title":
		b.Title, ok = a.Value.(string)
	case "author_name":
		b.AuthorName, ok = a.Value.(string)
	case "description":
		b.Description, ok = a.Value.(string)
	case "book_image":
		b.BookImage, ok = a.Value.(string)
	case "status":
		b.Status, ok = a.Value.(string)
	case "genre_id":
		b.GenreID, ok = a.Value.(int64)
	case "quantity":
		b.Quantity, ok = a.Value.(int)
	case "price":
		b.Price, ok = a.Value.(decimal.Decimal)
	case "discount":
		b.Discount, ok = a.Value.(decimal.Decimal)
	}
	if !ok {
		return fmt.Errorf("field %s: unexpected value type %T", a.Field, a.Value)
	}
	return nil
}

func (r *BookRepository) Seed(_ context.Context, books []entity.SaleBook) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(r.s.books) > 0 {
		return nil
	}
	for _, b := range books {
		r.s.putBookLocked(b)
	}
	return nil
}
