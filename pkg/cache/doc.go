// Package cache keeps single-entity API responses in Redis and revalidates
// them with conditional requests.
//
// Only GETs of one entity (an instance, an account, a status) go through
// the cache. Paginated list responses never do: their Link headers and
// contents move with every new post.
//
// Freshness comes from Cache-Control max-age, then Expires, then DefaultTTL.
// Responses marked no-store are not kept. Entries with an ETag or
// Last-Modified validator stay in Redis for StaleRetention after they go
// stale, so the next request can be sent as a conditional one and a 304
// answer served from the stored body.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Instance: "social.example",
//		Endpoint: "/api/v1/instance",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case errors.Is(err, cache.ErrCacheMiss):
//		// fetch and Set
//	case entry.IsExpired():
//		cache.AddConditionalHeaders(req, entry)
//	default:
//		resp := cache.EntryToResponse(entry)
//	}
//
// # Metrics
//
//   - fedi_cache_hits_total{layer="redis"}
//   - fedi_cache_misses_total
//   - fedi_cache_size_bytes{layer="redis"}
//   - fedi_cache_conditional_requests_total
//   - fedi_cache_not_modified_total
//   - fedi_cache_errors_total{operation}
package cache
