package domain

// Role is the kind of principal acting on the system.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
)

// Actor is an authenticated principal as resolved by the gateway.
type Actor struct {
	ID   string
	Role Role
}

// IsOwner reports whether the actor may manage pools.
func (a Actor) IsOwner() bool {
	return a.Role == RoleOwner
}

// Valid reports whether the actor carries an id and a known role.
func (a Actor) Valid() bool {
	return a.ID != "" && (a.Role == RoleUser || a.Role == RoleOwner)
}
