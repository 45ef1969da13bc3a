package cluster

import (
	"github.com/spaolacci/murmur3"
)

// ringSeed is shared by key and node hashing so both land in the same
// coordinate space.
const ringSeed = 0

// HashKey maps an opaque key (or a node ID) to its position on the ring.
func HashKey(key string) uint32 {
	return murmur3.Sum32WithSeed([]byte(key), ringSeed)
}
