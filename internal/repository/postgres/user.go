package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/egannguyen/go-bookstore/internal/apperr"
	"github.com/egannguyen/go-bookstore/internal/entity"
	"github.com/egannguyen/go-bookstore/internal/repository"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository backed by Postgres.
func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user %d: %w", id, err)
	}
	return exists, nil
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, first_name, last_name, email, phone_number, floor, building,
			street, city, additional_description, role, created_at
		FROM users WHERE user_id = $1`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber, &u.Floor, &u.Building,
		&u.Street, &u.City, &u.AdditionalDescription, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.NotFound, "user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}
	return &u, nil
}

func (r *userRepository) Update(ctx context.Context, id int64, patch repository.Patch) error {
	query, args, err := buildUpdate("users", "user_id", id, patch, repository.UserColumns)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "email already in use")
	}
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.NotFound, "user %d not found", id)
	}
	return nil
}
