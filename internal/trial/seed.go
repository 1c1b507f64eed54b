package trial

import (
	"github.com/cespare/xxhash/v2"

	"responsio/pkg/contract"
)

// Seed derives the sampler seed of one track of one trial. It depends only
// on its arguments, so any trial can be replayed in isolation.
func Seed(base uint64, kind contract.Kind, index int) uint64 {
	x := splitmix(base + 0x9e3779b97f4a7c15*uint64(int64(index)+1))
	return splitmix(x ^ xxhash.Sum64String(string(kind)))
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
