package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an identity the service has seen on an authenticated request.
// Accounts live with the identity provider; this is only a directory for
// resolving invitation emails.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func New(id uuid.UUID, email string, at time.Time) User {
	return User{ID: id, Email: strings.ToLower(strings.TrimSpace(email)), LastSeenAt: at}
}
