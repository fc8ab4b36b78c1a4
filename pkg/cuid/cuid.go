// Package cuid generates collision-resistant string identifiers for
// database rows. Identifiers are lowercase ULIDs: lexicographically
// sortable by creation time and safe to expose in URLs.
package cuid

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

const idLength = 26

func New() string {
	return strings.ToLower(ulid.Make().String())
}

// Valid reports whether s looks like an identifier produced by New.
func Valid(s string) bool {
	if len(s) != idLength {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(s))
	return err == nil
}
