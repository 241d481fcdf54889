package domain

// Role distinguishes the two sides of a support session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Participant identifies one connected actor on the event channel.
type Participant struct {
	ID   string
	Name string
	Role Role
}

func (p Participant) IsAgent() bool {
	return p.Role == RoleAgent
}
