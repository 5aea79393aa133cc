// Package cmap provides a concurrent map keyed by strings.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash; each shard has its own RWMutex. The HTTP layer keeps one rate
// limiter per client address in a Map.
//
//	m := cmap.New[*rate.Limiter]()
//	lim, _ := m.GetOrCreate(ip, newLimiter)
package cmap
