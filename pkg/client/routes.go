package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/fediverse-client/pkg/apijson"
	"github.com/Sternrassler/fediverse-client/pkg/cache"
	"github.com/Sternrassler/fediverse-client/pkg/entities"
	"github.com/Sternrassler/fediverse-client/pkg/pagination"
)

// PageOptions narrows the first page of a paginated route. Later pages
// follow the Link header and ignore these.
type PageOptions struct {
	Limit   int
	MaxID   string
	SinceID string
	MinID   string
}

func (o *PageOptions) values() url.Values {
	q := url.Values{}
	if o == nil {
		return q
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.MaxID != "" {
		q.Set("max_id", o.MaxID)
	}
	if o.SinceID != "" {
		q.Set("since_id", o.SinceID)
	}
	if o.MinID != "" {
		q.Set("min_id", o.MinID)
	}
	return q
}

// getPage fetches the first page of a paginated route. The page borrows c.
func getPage[T any](ctx context.Context, c *Client, path string, query url.Values) (*pagination.Page[T], error) {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return nil, err
	}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage[T](c, resp)
}

// HomeTimeline returns statuses from followed accounts. Requires a token.
func (c *Client) HomeTimeline(ctx context.Context, opts *PageOptions) (*pagination.Page[entities.Status], error) {
	return getPage[entities.Status](ctx, c, "/api/v1/timelines/home", opts.values())
}

// PublicTimeline returns the federated timeline, or only this instance's
// statuses when local is set.
func (c *Client) PublicTimeline(ctx context.Context, local bool, opts *PageOptions) (*pagination.Page[entities.Status], error) {
	q := opts.values()
	if local {
		q.Set("local", "true")
	}
	return getPage[entities.Status](ctx, c, "/api/v1/timelines/public", q)
}

// HashtagTimeline returns public statuses tagged with tag (without "#").
func (c *Client) HashtagTimeline(ctx context.Context, tag string, local bool, opts *PageOptions) (*pagination.Page[entities.Status], error) {
	if tag == "" {
		return nil, errors.New("hashtag is required")
	}
	q := opts.values()
	if local {
		q.Set("local", "true")
	}
	return getPage[entities.Status](ctx, c, "/api/v1/timelines/tag/"+url.PathEscape(tag), q)
}

// AccountStatuses returns the statuses posted by an account.
func (c *Client) AccountStatuses(ctx context.Context, accountID string, opts *PageOptions) (*pagination.Page[entities.Status], error) {
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	return getPage[entities.Status](ctx, c, "/api/v1/accounts/"+url.PathEscape(accountID)+"/statuses", opts.values())
}

// Followers returns the accounts following an account.
func (c *Client) Followers(ctx context.Context, accountID string, opts *PageOptions) (*pagination.Page[entities.Account], error) {
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	return getPage[entities.Account](ctx, c, "/api/v1/accounts/"+url.PathEscape(accountID)+"/followers", opts.values())
}

// Following returns the accounts an account follows.
func (c *Client) Following(ctx context.Context, accountID string, opts *PageOptions) (*pagination.Page[entities.Account], error) {
	if accountID == "" {
		return nil, errors.New("account id is required")
	}
	return getPage[entities.Account](ctx, c, "/api/v1/accounts/"+url.PathEscape(accountID)+"/following", opts.values())
}

// Notifications returns the authenticated account's notifications.
func (c *Client) Notifications(ctx context.Context, opts *PageOptions) (*pagination.Page[entities.Notification], error) {
	return getPage[entities.Notification](ctx, c, "/api/v1/notifications", opts.values())
}

// FavouritedBy returns the accounts that favourited a status.
func (c *Client) FavouritedBy(ctx context.Context, statusID string, opts *PageOptions) (*pagination.Page[entities.Account], error) {
	if statusID == "" {
		return nil, errors.New("status id is required")
	}
	return getPage[entities.Account](ctx, c, "/api/v1/statuses/"+url.PathEscape(statusID)+"/favourited_by", opts.values())
}

// RebloggedBy returns the accounts that boosted a status.
func (c *Client) RebloggedBy(ctx context.Context, statusID string, opts *PageOptions) (*pagination.Page[entities.Account], error) {
	if statusID == "" {
		return nil, errors.New("status id is required")
	}
	return getPage[entities.Account](ctx, c, "/api/v1/statuses/"+url.PathEscape(statusID)+"/reblogged_by", opts.values())
}

// Status returns a single status.
func (c *Client) Status(ctx context.Context, id string) (*entities.Status, error) {
	if id == "" {
		return nil, errors.New("status id is required")
	}
	return getEntity[entities.Status](ctx, c, "/api/v1/statuses/"+url.PathEscape(id))
}

// Account returns a single account.
func (c *Client) Account(ctx context.Context, id string) (*entities.Account, error) {
	if id == "" {
		return nil, errors.New("account id is required")
	}
	return getEntity[entities.Account](ctx, c, "/api/v1/accounts/"+url.PathEscape(id))
}

// VerifyCredentials returns the account the token belongs to.
func (c *Client) VerifyCredentials(ctx context.Context) (*entities.Account, error) {
	return getEntity[entities.Account](ctx, c, "/api/v1/accounts/verify_credentials")
}

// Instance returns the instance metadata, including the streaming URL.
func (c *Client) Instance(ctx context.Context) (*entities.Instance, error) {
	return getEntity[entities.Instance](ctx, c, "/api/v1/instance")
}

// getEntity fetches a single entity. With a cache configured a fresh entry
// is served without a request and a stale one is revalidated with its
// validators.
func getEntity[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := c.newRequest(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.sendCached(ctx, req)
	if err != nil {
		return nil, err
	}

	v, err := apijson.DecodeResponse[T](resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", routeLabel(path), err)
	}
	return &v, nil
}

// sendCached runs req through the entity cache when one is configured.
func (c *Client) sendCached(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.cache == nil {
		return c.Send(ctx, req)
	}

	key := cache.CacheKey{
		Instance:    c.base.Host,
		Endpoint:    req.URL.Path,
		QueryParams: req.URL.Query(),
	}
	if scoper, ok := c.auth.(cacheScoper); ok {
		key.Scope = scoper.CacheScope()
	}

	cached, err := c.cache.Get(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Cache get error")
	}

	if cached != nil {
		if !cached.IsExpired() {
			c.logger.Debug().Str("url", req.URL.String()).Msg("Serving from cache")
			return cache.EntryToResponse(cached), nil
		}
		if cache.ShouldMakeConditionalRequest(cached) {
			cache.AddConditionalHeaders(req, cached)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("url", req.URL.String()).
				Str("etag", cached.ETag).
				Msg("Making conditional request")
		}
	}

	resp, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		drainAndClose(resp.Body)
		cache.RefreshFromNotModified(cached, resp.Header)
		if err := c.cache.Revalidated(ctx, key, cached); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return cache.EntryToResponse(cached), nil
	}

	if resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if entry != nil {
			if err := c.cache.Set(ctx, key, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("url", req.URL.String()).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}
