// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import (
	"sync"
	"sync/atomic"
)

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// Stats counts pool traffic. News is the number of Gets that had to
// allocate because nothing was available for reuse.
type Stats struct {
	Gets int64
	Puts int64
	News int64
}

// SyncPool wraps sync.Pool for generic usage.
type SyncPool[T any] struct {
	pool *sync.Pool
	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewSyncPool creates a new SyncPool with a creator function.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	sp := &SyncPool[T]{}
	sp.pool = &sync.Pool{New: func() any {
		sp.news.Add(1)
		return creator()
	}}
	return sp
}

func (sp *SyncPool[T]) Get() T {
	sp.gets.Add(1)
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	sp.puts.Add(1)
	sp.pool.Put(obj)
}

// Stats returns a snapshot of the pool counters.
func (sp *SyncPool[T]) Stats() Stats {
	return Stats{
		Gets: sp.gets.Load(),
		Puts: sp.puts.Load(),
		News: sp.news.Load(),
	}
}
