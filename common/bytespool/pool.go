// Package bytespool provides tiered byte-slice pooling for body chunks
// and transfer buffers. Slices below the smallest tier are allocated
// directly; everything else is recycled through per-size sync.Pools.
package bytespool

import "sync"

// Tier layout: starting at MinPoolSize, each pool doubles the previous
// one. The largest tier matches the default transfer-buffer spill
// threshold, so a fully buffered in-memory body fits a single pooled
// slice.
const (
	numPools    = 9
	MinPoolSize = 4096    // 4KB, typical host chunk
	MaxPoolSize = 1 << 20 // 1MB, in-memory transfer cap
)

var (
	pools    [numPools]sync.Pool
	poolSize [numPools]int
)

func init() {
	size := MinPoolSize
	for i := range numPools {
		s := size
		pools[i] = sync.Pool{
			New: func() any { return make([]byte, s) },
		}
		poolSize[i] = s
		size *= 2
	}
}

// Alloc returns a byte slice of exactly the given length, backed by a
// pooled array when a suitable tier exists.
func Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	for i, ps := range poolSize {
		if size <= ps {
			return pools[i].Get().([]byte)[:size]
		}
	}
	return make([]byte, size)
}

// Free returns a slice obtained from Alloc to its tier. Slices that do
// not map onto a tier are dropped for the GC to collect.
func Free(b []byte) {
	size := cap(b)
	if size < MinPoolSize {
		return
	}
	for i := numPools - 1; i >= 0; i-- {
		if size >= poolSize[i] {
			pools[i].Put(b[0:poolSize[i]])
			return
		}
	}
}
