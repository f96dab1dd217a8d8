package postgres

import (
	"fmt"
	"strings"

	"github.com/egannguyen/go-bookstore/internal/repository"
)

// buildUpdate renders "UPDATE table SET a = $1, b = $2 WHERE key = $3".
// Column names come from the allow-list only; every value is a parameter.
func buildUpdate(table, key string, id int64, patch repository.Patch, allowed repository.Columns) (string, []any, error) {
	if err := patch.Validate(allowed); err != nil {
		return "", nil, err
	}

	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch)+1)
	for i, a := range patch {
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Field, i+1))
		args = append(args, a.Value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", table, strings.Join(sets, ", "), key, len(args))
	return query, args, nil
}
