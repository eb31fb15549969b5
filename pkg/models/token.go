package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns up to five API tokens, identified by a unique login.
type User struct {
	ID    uuid.UUID `db:"id"    json:"id"`
	Login string    `db:"login" json:"login"`
}

// APIToken is an opaque bearer token with an hourly request budget.
// Limit counts remaining requests in the current window; LastUpdate marks
// the window start and is only advanced when the window is reset.
type APIToken struct {
	ID         uuid.UUID `db:"id"            json:"-"`
	UserID     uuid.UUID `db:"user_id"       json:"-"`
	Token      string    `db:"token"         json:"token"`
	Limit      int       `db:"request_limit" json:"limit"`
	LastUpdate time.Time `db:"last_update"   json:"-"`
}
