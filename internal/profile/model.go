package profile

import (
	"errors"
	"time"
)

const (
	// Collection is the document collection holding user profiles.
	Collection = "user"

	RoleUser  = "user"
	RoleAdmin = "admin"

	joinDateLayout = "Jan 02, 2006"
)

// ErrNotFound is returned when no profile matches a uid.
var ErrNotFound = errors.New("profile not found")

// Profile is the durable user record created at signup.
type Profile struct {
	DocID string    `json:"-" firestore:"-"`
	UID   string    `json:"uid" firestore:"uid"`
	Name  string    `json:"name" firestore:"name"`
	Email string    `json:"email" firestore:"email"`
	Phone string    `json:"phone,omitempty" firestore:"phone,omitempty"`
	Role  string    `json:"role" firestore:"role"`
	Time  time.Time `json:"time" firestore:"time"`
	Date  string    `json:"date" firestore:"date"`
}

// FormatJoinDate renders t the way dashboards show the join date, e.g. "Oct 07, 2026".
func FormatJoinDate(t time.Time) string {
	return t.Format(joinDateLayout)
}

// ValidRole reports whether role is one the storefront knows about.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
