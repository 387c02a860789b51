package enums

import "slices"

// ActorRole is the platform role carried in access tokens.
type ActorRole string

const (
	// ActorRoleAdmin manages affiliates, assignments and adjustments.
	ActorRoleAdmin ActorRole = "admin"
	// ActorRoleReviewer works the payout review queue.
	ActorRoleReviewer ActorRole = "reviewer"
	// ActorRoleMember is a platform user; may apply and read their own account.
	ActorRoleMember ActorRole = "member"
)

var validActorRoles = []ActorRole{ActorRoleAdmin, ActorRoleReviewer, ActorRoleMember}

func (r ActorRole) IsValid() bool {
	return slices.Contains(validActorRoles, r)
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	return parse(validActorRoles, value, "actor role")
}
