// Package cache provides a small generic TTL cache with LRU eviction and
// singleflight-coalesced loads.
//
// Providers own their caches explicitly: the TTL comes from the cluster's
// provider params and the cache is closed together with the provider, so no
// lookup result outlives the component that produced it.
package cache
