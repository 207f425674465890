package domain

import "time"

// User is an identity with a credit balance.
type User struct {
	ID                      string
	Email                   string
	IsAdmin                 bool
	Credits                 int64
	ExternalCustomerRef     *string
	ExternalSubscriptionRef *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Caller identifies who is performing an operation: an authenticated user or
// the trusted system (shared secret).
type Caller struct {
	UserID string
	System bool
}

// UserCaller returns a Caller for an authenticated user.
func UserCaller(userID string) Caller {
	return Caller{UserID: userID}
}

// SystemCaller returns the trusted system Caller.
func SystemCaller() Caller {
	return Caller{System: true}
}

// Owns reports whether the caller may act on a resource owned by ownerID.
func (c Caller) Owns(ownerID string) bool {
	return c.System || (c.UserID != "" && c.UserID == ownerID)
}
