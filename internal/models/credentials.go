package models

// Credentials holds the portal username and password for one flow
// execution. Never persisted; held in memory only for the duration of the
// flow that consumes it.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// String masks the password so credentials can appear in log fields
// without leaking secrets.
func (c Credentials) String() string {
	return c.Username + ":********"
}

// Valid reports whether both fields are non-empty.
func (c Credentials) Valid() bool {
	return c.Username != "" && c.Password != ""
}
