package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ScreenID    ID
	CohortID    ID
	VariableKey ID
)

// String conversions for domain IDs
func (id ScreenID) String() string    { return ID(id).String() }
func (id CohortID) String() string    { return ID(id).String() }
func (id VariableKey) String() string { return ID(id).String() }

// ParseScreenID parses a string into ScreenID
func ParseScreenID(s string) (ScreenID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("screen ID cannot be empty")
	}
	return ScreenID(s), nil
}

// ParseVariableKey parses a string into VariableKey
func ParseVariableKey(s string) (VariableKey, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("variable key cannot be empty")
	}
	return VariableKey(s), nil
}
