package core

import "github.com/google/uuid"

// NewID returns a UUIDv7. Ids of records created later sort after earlier ones.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
