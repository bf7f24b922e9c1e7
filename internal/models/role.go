package models

// Role is the access level of a user within its tenant.
type Role string

const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Capability names an action guarded by role checks.
type Capability string

const (
	CapManageProducts Capability = "manageProducts"
	CapManageUsers    Capability = "manageUsers"
	CapViewAllOrders  Capability = "viewAllOrders"
	CapViewOwnOrders  Capability = "viewOwnOrders"
)

var capabilityRoles = map[Capability][]Role{
	CapManageProducts: {RoleAdmin, RoleManager},
	CapManageUsers:    {RoleAdmin},
	CapViewAllOrders:  {RoleAdmin, RoleManager},
	CapViewOwnOrders:  {RoleUser, RoleManager, RoleAdmin},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Can reports whether the role grants capability. Unknown roles and
// capabilities grant nothing.
func (r Role) Can(capability Capability) bool {
	for _, allowed := range capabilityRoles[capability] {
		if allowed == r {
			return true
		}
	}
	return false
}
