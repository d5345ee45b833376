package models

// UserID identifies an externally authenticated user.
type UserID string

func (id UserID) String() string {
	return string(id)
}

// UserIDPtr returns a pointer to a copy of id, handy for nullable JSON fields.
func UserIDPtr(id UserID) *UserID {
	return &id
}
