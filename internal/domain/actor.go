package domain

// Actor is the authenticated caller of an operation
type Actor struct {
	ID   string
	Role string
}

// HasRole reports whether the actor carries role
func (a Actor) HasRole(role string) bool {
	return role != "" && a.Role == role
}
