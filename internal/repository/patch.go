package repository

import "fmt"

// Assignment sets one column to a value.
type Assignment struct {
	Field string
	Value any
}

// Patch is an ordered list of column assignments for a partial update.
// Fields are plain column names; values are always bound as parameters.
type Patch []Assignment

// Set adds or replaces the value for field.
func (p *Patch) Set(field string, value any) {
	for i := range *p {
		if (*p)[i].Field == field {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Assignment{Field: field, Value: value})
}

// Lookup returns the value assigned to field.
func (p Patch) Lookup(field string) (any, bool) {
	for _, a := range p {
		if a.Field == field {
			return a.Value, true
		}
	}
	return nil, false
}

// Validate checks that the patch is non-empty and only touches allowed columns.
func (p Patch) Validate(allowed Columns) error {
	if len(p) == 0 {
		return fmt.Errorf("no fields to update")
	}
	for _, a := range p {
		if !allowed.Has(a.Field) {
			return fmt.Errorf("field %q cannot be updated", a.Field)
		}
	}
	return nil
}

// Columns is an allow-list of updatable column names.
type Columns map[string]struct{}

func NewColumns(names ...string) Columns {
	c := make(Columns, len(names))
	for _, n := range names {
		c[n] = struct{}{}
	}
	return c
}

func (c Columns) Has(name string) bool {
	_, ok := c[name]
	return ok
}

var (
	BookColumns = NewColumns(
		"title", "genre_id", "author_name", "price", "quantity",
		"description", "book_image", "discount", "status",
	)
	UserColumns = NewColumns(
		"first_name", "last_name", "email", "phone_number", "floor",
		"building", "street", "city", "additional_description", "role",
	)
)
