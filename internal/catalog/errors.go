package catalog

import (
	"errors"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("already exists")
	ErrValidation     = errors.New("validation failed")
	ErrMissingContext = errors.New("missing conversation context")
)

// IsRecoverable reports whether the user can fix err by sending different input.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrDuplicate)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern builds a lowercased LIKE pattern matching q anywhere,
// with wildcards in q taken literally. Use with ESCAPE '\'.
func ContainsPattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
}
