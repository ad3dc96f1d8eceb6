package producer

import (
	"hash/fnv"
)

// partitionForKey routes a partition key deterministically: the same key
// always lands on the same partition for a fixed partition set.
func partitionForKey(key string, partitions []int32) int32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return partitions[h.Sum64()%uint64(len(partitions))]
}
