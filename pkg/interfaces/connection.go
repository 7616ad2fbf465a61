package interfaces

import "chathub/pkg/types"

// Connection represents a live transport connection bound to at most one identity.
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and business logic
type Connection interface {
	// ID is unique per physical connection; one user may hold several.
	ID() string

	// WriteJSON sends a JSON message to the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Thread-safety requirement documented in interface
	// to ensure all implementations use single-writer pattern to prevent races
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// Identity returns the identity bound by a successful join.
	Identity() types.Identity

	// IsAuthenticated returns true once SetIdentity has been called.
	IsAuthenticated() bool

	// SetIdentity binds the connection to an authenticated user.
	SetIdentity(identity types.Identity) error
}
