package pgstore

import "unicode"

// maxIdentifierLen is NAMEDATALEN-1. Postgres truncates longer names, which
// would let two configured names alias the same object.
const maxIdentifierLen = 63

// ValidIdentifier reports whether name is a safe Postgres identifier: a
// letter (any script) or underscore, followed by letters, digits,
// underscores or dollar signs.
//
// See https://www.postgresql.org/docs/current/sql-syntax-lexical.html#SQL-SYNTAX-IDENTIFIERS
func ValidIdentifier(name string) bool {
	if name == "" || len(name) > maxIdentifierLen {
		return false
	}
	for i, r := range name {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' {
			return false
		}
	}
	return true
}
