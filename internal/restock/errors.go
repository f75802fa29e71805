package restock

import "errors"

// ErrStoreUnavailable is returned when the subscription store cannot be read or
// no claim could be attempted. No partial state is left behind: claims that
// did land are recovered by the claim timeout.
var ErrStoreUnavailable = errors.New("subscription store unavailable")
