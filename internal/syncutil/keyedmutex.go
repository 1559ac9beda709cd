// Package syncutil provides small synchronization helpers.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex provides a fixed-size pool of mutexes keyed by string.
// It uses bounded memory regardless of how many keys are seen, at the
// cost of occasional false sharing between keys that hash to the same
// shard. Per-escrow-account serialization is built on this.
type KeyedMutex struct {
	shards [128]sync.Mutex
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	mu := k.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (k *KeyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%uint32(len(k.shards))]
}
