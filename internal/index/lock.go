package index

import "sync/atomic"

// ProcessingLock is a process-wide, non-blocking lock. At most one load
// run holds it at a time; callers that lose the race fail immediately.
type ProcessingLock struct {
	owner atomic.Pointer[string]
}

// TryAcquire takes the lock for owner. It never blocks.
func (l *ProcessingLock) TryAcquire(owner string) bool {
	o := owner
	return l.owner.CompareAndSwap(nil, &o)
}

// Release frees the lock if owner holds it.
func (l *ProcessingLock) Release(owner string) bool {
	cur := l.owner.Load()
	if cur == nil || *cur != owner {
		return false
	}
	return l.owner.CompareAndSwap(cur, nil)
}

// IsHeld reports whether any run holds the lock.
func (l *ProcessingLock) IsHeld() bool {
	return l.owner.Load() != nil
}

// Owner returns the current holder, or "".
func (l *ProcessingLock) Owner() string {
	if cur := l.owner.Load(); cur != nil {
		return *cur
	}
	return ""
}
