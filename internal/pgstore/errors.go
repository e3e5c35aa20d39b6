package pgstore

import (
	"errors"

	"github.com/lib/pq"
	"github.com/whisper/pgsession/internal/session"
)

// SQLSTATE codes raised when two transactions create the same object.
const (
	codeUniqueViolation = "23505"
	codeDuplicateSchema = "42P06"
	codeDuplicateTable  = "42P07"
)

// isDuplicateObject reports whether err comes from a concurrent creation of
// a schema, table or index.
func isDuplicateObject(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeUniqueViolation, codeDuplicateSchema, codeDuplicateTable:
		return true
	}
	return false
}

func backendErr(op string, err error) error {
	var se *session.Error
	if errors.As(err, &se) {
		return err
	}
	return session.NewError(op, session.KindBackend, err)
}
