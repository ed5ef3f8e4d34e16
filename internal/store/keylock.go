package store

import "sync"

// keyedLocks is a sharded mutex keyed by canonical lemma id. It serializes
// concurrent memory writes per lemma while letting distinct lemmas proceed
// in parallel.
type keyedLocks struct {
	shards []sync.Mutex
}

func newKeyedLocks(n int) *keyedLocks {
	if n <= 0 {
		n = 64
	}
	return &keyedLocks{shards: make([]sync.Mutex, n)}
}

func (k *keyedLocks) shard(id int64) *sync.Mutex {
	idx := int(uint64(id) % uint64(len(k.shards)))
	return &k.shards[idx]
}

// lock acquires the shard of one lemma and returns the unlock.
func (k *keyedLocks) lock(id int64) func() {
	m := k.shard(id)
	m.Lock()
	return m.Unlock
}

// lockAll acquires the shards of all ids in index order to avoid deadlock,
// skipping duplicates that hash to the same shard.
func (k *keyedLocks) lockAll(ids []int64) func() {
	taken := make([]bool, len(k.shards))
	for _, id := range ids {
		taken[int(uint64(id)%uint64(len(k.shards)))] = true
	}
	var held []*sync.Mutex
	for i := range taken {
		if taken[i] {
			k.shards[i].Lock()
			held = append(held, &k.shards[i])
		}
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
