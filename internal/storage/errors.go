package storage

import "settlement-engine/pkg/platform/sentinel"

// ErrNotFound is returned by every Store implementation for absent keys.
var ErrNotFound = sentinel.ErrNotFound
