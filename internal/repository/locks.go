package repository

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// keyedLocks serializes writers per raw name within the process.
// Distinct names may share a stripe; that only costs parallelism.
type keyedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyedLocks) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%lockStripes]
	m.Lock()
	return m.Unlock
}
