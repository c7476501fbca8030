package sqlstore

import (
	"fmt"
	"strings"
)

// SanitizeTableName validates a table name of the form [schema.]table.
func SanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	for _, part := range strings.Split(name, ".") {
		if !validIdentifier(part) {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}

func sanitizeColumns(cols []string) error {
	for _, col := range cols {
		if !validIdentifier(col) {
			return fmt.Errorf("%w: %q", ErrInvalidColumnName, col)
		}
	}

	return nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}

		return false
	}

	return true
}
