package services

import "errors"

// Typed outcomes of membership operations. Handlers translate these
// into transport responses; the service layer never maps them to HTTP
// itself and never retries them.
var (
	// ErrForbidden covers both an insufficient access level and
	// structurally disallowed transitions (owner self-leave, granting
	// owner through bulk add).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced membership or access request
	// does not exist on the given project.
	ErrNotFound = errors.New("membership not found")

	ErrAlreadyMember    = errors.New("user is already a member of this project")
	ErrAlreadyRequested = errors.New("access request already pending")

	// ErrNoUsers is reported when add is called with no user ids, so
	// callers can surface "no users specified" instead of a
	// permission error.
	ErrNoUsers = errors.New("no users specified")
)
