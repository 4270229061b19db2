package domain

import "time"

// Account is the collaborator-owned user record this core reads to resolve a
// verified payment's customer email to an internal user id.
type Account struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}
