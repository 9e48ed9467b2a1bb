package recalc

// rank maps a role to its explicit position in the hierarchy. The order
// lives here and nowhere else; comparisons never rely on declaration
// order.
func (r Role) rank() (int, bool) {
	switch r {
	case RoleUser:
		return 0, true
	case RoleManager:
		return 1, true
	case RoleAdmin:
		return 2, true
	default:
		return 0, false
	}
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	_, ok := r.rank()
	return ok
}

// IsAtLeast checks if this role meets the minimum required level.
// Unknown roles never meet any minimum.
func (r Role) IsAtLeast(minRole Role) bool {
	current, ok := r.rank()
	if !ok {
		return false
	}

	min, ok := minRole.rank()
	if !ok {
		return false
	}

	return current >= min
}

// AllRoles returns the predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{RoleUser, RoleManager, RoleAdmin}
}
