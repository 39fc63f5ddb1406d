package auth

import "github.com/congo-pay/storefront/internal/profile"

const (
	LoginPath     = "/login"
	UserAreaPath  = "/user-dashboard"
	AdminAreaPath = "/admin-dashboard"
)

// Destination picks the area a signed-in profile lands on. Only the exact
// role "user" goes to the user area; anything else is routed to admin.
func Destination(role string) string {
	if role == profile.RoleUser {
		return UserAreaPath
	}
	return AdminAreaPath
}
