package sharding

import (
	"hash/crc32"

	"github.com/google/uuid"
)

// Resolver maps an entity key to the shard that owns it. The mapping is a
// pure function of the key: every service instance, on every restart, must
// resolve the same key to the same shard.
type Resolver struct {
	shardCount int
}

func NewResolver(shardCount int) *Resolver {
	if shardCount <= 0 {
		panic("sharding: shard count must be positive")
	}
	return &Resolver{shardCount: shardCount}
}

// ResolveShard returns the shard index for key, in [0, ShardCount).
func (r *Resolver) ResolveShard(key uuid.UUID) int {
	checksum := crc32.ChecksumIEEE(key[:])
	return int(checksum % uint32(r.shardCount))
}

// ShardCount returns the static number of shards.
func (r *Resolver) ShardCount() int {
	return r.shardCount
}
