package querysql

import (
	"fmt"
	"strings"
)

// Sort is one ORDER BY key.
type Sort struct {
	Property   string
	Descending bool
}

// Asc and Desc build sort keys.
func Asc(property string) Sort  { return Sort{Property: property} }
func Desc(property string) Sort { return Sort{Property: property, Descending: true} }

// ParseSort parses "property" or "property:asc|desc".
func ParseSort(s string) (Sort, error) {
	property, direction, found := strings.Cut(s, ":")
	if property == "" {
		return Sort{}, fmt.Errorf("parse sort %q: empty property", s)
	}
	if !found {
		return Asc(property), nil
	}
	switch strings.ToLower(direction) {
	case "asc":
		return Asc(property), nil
	case "desc":
		return Desc(property), nil
	default:
		return Sort{}, fmt.Errorf("parse sort %q: direction must be asc or desc", s)
	}
}

// OrderBy renders an ORDER BY clause (with a leading space) in the given
// order; the first key is the primary sort. Empty sorting yields "".
func OrderBy(m Metadata, sorting []Sort) (string, error) {
	if len(sorting) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(sorting))
	for _, s := range sorting {
		column, err := m.Column(s.Property)
		if err != nil {
			return "", err
		}
		if s.Descending {
			parts = append(parts, column+" DESC")
		} else {
			parts = append(parts, column+" ASC")
		}
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
