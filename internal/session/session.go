// Package session defines the backend-agnostic session record, the storage
// contract implemented by the Postgres and Redis stores, identifier
// allocation, the payload envelope written to storage and the error type
// every store returns.
package session
