package cache

import (
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "simple endpoint",
			key:  CacheKey{Instance: "social.example", Endpoint: "/api/v1/instance"},
			want: "fedi:social.example:api/v1/instance",
		},
		{
			name: "query params sorted",
			key: CacheKey{
				Instance: "social.example",
				Endpoint: "/api/v1/accounts/1/statuses",
				QueryParams: url.Values{
					"only_media":      []string{"true"},
					"exclude_replies": []string{"true"},
				},
			},
			want: "fedi:social.example:api/v1/accounts/1/statuses:exclude_replies=true:only_media=true",
		},
		{
			name: "multi-valued query param",
			key: CacheKey{
				Instance:    "social.example",
				Endpoint:    "/api/v1/accounts/relationships",
				QueryParams: url.Values{"id[]": []string{"3", "1"}},
			},
			want: "fedi:social.example:api/v1/accounts/relationships:id[]=1,3",
		},
		{
			name: "scoped to credentials",
			key:  CacheKey{Instance: "social.example", Endpoint: "/api/v1/statuses/9", Scope: "ab12"},
			want: "fedi:social.example:api/v1/statuses/9:scope=ab12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheKey_Determinism(t *testing.T) {
	key := CacheKey{
		Instance:    "social.example",
		Endpoint:    "/api/v1/accounts/1",
		QueryParams: url.Values{"b": []string{"2"}, "a": []string{"1"}, "c": []string{"3"}},
	}

	first := key.String()
	for i := 0; i < 100; i++ {
		if got := key.String(); got != first {
			t.Fatalf("String() = %q on iteration %d, want %q", got, i, first)
		}
	}
}
