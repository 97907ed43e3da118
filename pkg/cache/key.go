package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a stored response.
type CacheKey struct {
	// Instance is the API host, e.g. "social.example".
	Instance string

	// Endpoint is the request path, e.g. "/api/v1/statuses/123".
	Endpoint string

	QueryParams url.Values

	// Scope separates responses fetched with different credentials; empty
	// for unauthenticated requests.
	Scope string
}

// String generates a deterministic key.
//
// Example:
//
//	fedi:social.example:api/v1/accounts/1:with_suspended=true:scope=7f3a
func (k CacheKey) String() string {
	parts := []string{"fedi", k.Instance}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}
