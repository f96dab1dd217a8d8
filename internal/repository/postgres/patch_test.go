package postgres

import (
	"testing"

	"github.com/egannguyen/go-bookstore/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdate(t *testing.T) {
	price := decimal.RequireFromString("9.99")
	var p repository.Patch
	p.Set("price", price)
	p.Set("quantity", 4)

	query, args, err := buildUpdate("salebooks", "sale_book_id", 3, p, repository.BookColumns)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE salebooks SET price = $1, quantity = $2 WHERE sale_book_id = $3", query)
	assert.Equal(t, []any{price, 4, int64(3)}, args)
}

func TestBuildUpdateRejectsUnknownColumns(t *testing.T) {
	p := repository.Patch{{Field: "quantity = 0; DROP TABLE salebooks; --", Value: 1}}
	_, _, err := buildUpdate("salebooks", "sale_book_id", 3, p, repository.BookColumns)
	assert.Error(t, err)

	_, _, err = buildUpdate("users", "user_id", 1, nil, repository.UserColumns)
	assert.EqualError(t, err, "no fields to update")
}
