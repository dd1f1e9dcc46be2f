package enums

import (
	"fmt"
	"slices"
)

// closed is the complete value list of one Postgres enum. Matching is exact:
// the database rejects any other spelling.
type closed[T ~string] struct {
	name   string
	values []T
}

func enumOf[T ~string](name string, values ...T) closed[T] {
	return closed[T]{name: name, values: values}
}

func (c closed[T]) has(v T) bool {
	return slices.Contains(c.values, v)
}

func (c closed[T]) parse(raw string) (T, error) {
	if v := T(raw); c.has(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", c.name, raw)
}

// all returns a copy callers may keep.
func (c closed[T]) all() []T {
	return slices.Clone(c.values)
}
