package joblock

import "errors"

var (
	// ErrLockUnavailable indicates the lock backend failed, not that the lock was held.
	ErrLockUnavailable = errors.New("lock backend unavailable")
)
