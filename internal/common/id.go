package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique login-flow session ID with the "flow_"
// prefix. Format: flow_<uuid>
func NewSessionID() string {
	return "flow_" + uuid.New().String()
}
