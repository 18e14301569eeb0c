package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and outbound clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: key does not exist in the store
//   - ErrUnavailable: store or remote peer could not be reached
//   - ErrRejected: remote peer answered with a non-success status
//
// For validation errors (bad input, unknown message types), use
// pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrRejected    = errors.New("rejected")
)
