package models

import "github.com/google/uuid"

// newUUID generates a new random identifier string for entities whose
// primary key is assigned application-side in a BeforeCreate hook.
func newUUID() string {
	return uuid.New().String()
}
