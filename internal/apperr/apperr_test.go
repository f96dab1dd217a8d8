package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", New(NotFound, "user not found"), NotFound},
		{"wrapped classified", fmt.Errorf("checkout: %w", ForItem(DuplicateItem, 3, "duplicate book %d", 3)), DuplicateItem},
		{"plain error", errors.New("boom"), Internal},
		{"wrapped internal", Wrap(sql.ErrConnDone, "failed to read book"), Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapKeepsClassification(t *testing.T) {
	orig := ForItem(InsufficientStock, 9, "not enough stock")
	got := Wrap(fmt.Errorf("outer: %w", orig), "ignored")

	assert.Equal(t, InsufficientStock, KindOf(got))
	id, ok := ItemIDOf(got)
	assert.True(t, ok)
	assert.Equal(t, int64(9), id)
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestIsMatchesKindAndItem(t *testing.T) {
	err := fmt.Errorf("x: %w", ForItem(DuplicateItem, 3, "dup"))

	assert.True(t, errors.Is(err, &Error{Kind: DuplicateItem}))
	assert.True(t, errors.Is(err, &Error{Kind: DuplicateItem, ItemID: 3}))
	assert.False(t, errors.Is(err, &Error{Kind: DuplicateItem, ItemID: 4}))
	assert.False(t, errors.Is(err, &Error{Kind: NotFound}))
}

func TestMessageOfHidesInternal(t *testing.T) {
	assert.Equal(t, "internal server error", MessageOf(Wrap(errors.New("pq: password auth failed"), "db")))
	assert.Equal(t, "order not found", MessageOf(New(NotFound, "order not found")))
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: Internal, Message: "failed to place order", Err: errors.New("tx aborted")}
	assert.Equal(t, "failed to place order: tx aborted", err.Error())
	assert.ErrorIs(t, err, err.Err)
}
