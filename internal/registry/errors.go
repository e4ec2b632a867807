package registry

import "errors"

// Error kinds surfaced by the mount manager. Every administrative failure is
// distinguishable with errors.Is so a caller can decide whether to retry or
// correct its input.
var (
	// ErrPrefixTaken reports an explicit prefix that collides with an
	// existing mount. The request is rejected entirely; explicit prefixes
	// are never silently renamed.
	ErrPrefixTaken = errors.New("prefix already exists")

	// ErrPrefixNotFound reports an unknown prefix.
	ErrPrefixNotFound = errors.New("prefix not found")

	// ErrToolNotFound reports an unknown tool name under a known prefix.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidPrefix reports a prefix that is not a URL-path-safe token.
	ErrInvalidPrefix = errors.New("invalid prefix")

	// ErrStoreWriteFailed reports a store write that did not complete. The
	// attempted mutation has been fully rolled back: the registry never
	// holds state that was not durably persisted.
	ErrStoreWriteFailed = errors.New("store write failed")
)
