package domain

// SessionFilter narrows a session listing. Zero value means "everything,
// most recent activity first".
type SessionFilter struct {
	Status *Status
	Search string
}
