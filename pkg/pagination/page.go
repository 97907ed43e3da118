package pagination

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/Sternrassler/fediverse-client/pkg/apijson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNilSender is returned by NewPage when no sender is supplied.
	ErrNilSender = errors.New("pagination: sender is required")

	// ErrNilResponse is returned by NewPage when no response is supplied.
	ErrNilResponse = errors.New("pagination: response is required")

	// ErrPageReleased is returned by a Page after IntoOwned or Items took
	// it over.
	ErrPageReleased = errors.New("pagination: page has been released")

	// ErrPageFailed is returned by every fetch after a previous fetch failed.
	ErrPageFailed = errors.New("pagination: page is unusable after a failed fetch")

	// ErrForeignHost is returned when a Link target points at a different
	// host than the response the page was built from.
	ErrForeignHost = errors.New("pagination: link target is on a different host")
)

// Sender performs an authenticated HTTP request. *client.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Sharer is implemented by senders that can hand out a long-lived handle
// for pages stored beyond the call that produced them.
type Sharer interface {
	Share() Sender
}

// pager is the fetch engine shared by Page and OwnedPage.
type pager[T any] struct {
	sender Sender
	cursor Cursor
	failed error
	logger zerolog.Logger

	// host pins every fetch to the host of the first response, or of the
	// first fetched page when that response carried no request.
	host string
}

func (p *pager[T]) fetch(ctx context.Context, dir Direction) ([]T, bool, error) {
	if p.failed != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPageFailed, p.failed)
	}

	desc := p.cursor.take(dir)
	if desc == nil {
		p.logger.Debug().Str("direction", string(dir)).Msg("No page in this direction")
		return nil, false, nil
	}

	items, err := p.fetchDescriptor(ctx, dir, desc)
	if err != nil {
		p.failed = err
		PageErrors.WithLabelValues(string(dir)).Inc()
		p.logger.Warn().
			Err(err).
			Str("direction", string(dir)).
			Str("url", desc.URL.String()).
			Msg("Page fetch failed")
		return nil, false, err
	}

	PagesFetched.WithLabelValues(string(dir)).Inc()
	PageItems.WithLabelValues(string(dir)).Add(float64(len(items)))
	p.logger.Debug().
		Str("direction", string(dir)).
		Str("url", desc.URL.String()).
		Int("items", len(items)).
		Bool("has_next", p.cursor.Next != nil).
		Bool("has_prev", p.cursor.Prev != nil).
		Msg("Fetched page")

	return items, true, nil
}

func (p *pager[T]) fetchDescriptor(ctx context.Context, dir Direction, desc *FetchDescriptor) ([]T, error) {
	if p.host == "" {
		p.host = desc.URL.Host
	}
	if !strings.EqualFold(desc.URL.Host, p.host) {
		return nil, fmt.Errorf("%w: %s", ErrForeignHost, desc.URL.Host)
	}

	req, err := desc.NewRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page: %w", dir, err)
	}

	// The new Link header is authoritative for both directions.
	cursor, err := CursorFromResponse(resp)
	if err != nil {
		closeBody(resp)
		return nil, err
	}
	p.cursor = cursor

	items, err := apijson.DecodeResponse[[]T](resp)
	if err != nil {
		return nil, fmt.Errorf("decode %s page: %w", dir, err)
	}
	return items, nil
}

// Page is one batch of results plus the cursor to its neighbours. It
// borrows the sender it was created with; use IntoOwned to keep a page
// around beyond the call that produced it.
//
// Link targets are only followed on the host the page came from, so the
// sender's credentials never reach another host. A foreign target fails the
// fetch with ErrForeignHost.
type Page[T any] struct {
	// InitialItems is the batch decoded from the response the page was
	// built from.
	InitialItems []T

	pager    pager[T]
	released bool
}

// NewPage decodes resp into the first batch of items and reads its Link
// header. The response body is consumed and closed.
func NewPage[T any](sender Sender, resp *http.Response) (*Page[T], error) {
	if sender == nil {
		closeBody(resp)
		return nil, ErrNilSender
	}
	if resp == nil {
		return nil, ErrNilResponse
	}

	cursor, err := CursorFromResponse(resp)
	if err != nil {
		closeBody(resp)
		return nil, err
	}

	items, err := apijson.DecodeResponse[[]T](resp)
	if err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	var host string
	if resp.Request != nil && resp.Request.URL != nil {
		host = resp.Request.URL.Host
	}

	return &Page[T]{
		InitialItems: items,
		pager: pager[T]{
			sender: sender,
			cursor: cursor,
			logger: log.With().Str("component", "pagination").Logger(),
			host:   host,
		},
	}, nil
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

// Cursor returns the current cursor.
func (p *Page[T]) Cursor() Cursor {
	return p.pager.cursor
}

// NextPage fetches the page after the current one. It returns
// (nil, false, nil) without a request when the cursor has no next page.
func (p *Page[T]) NextPage(ctx context.Context) ([]T, bool, error) {
	if p.released {
		return nil, false, ErrPageReleased
	}
	return p.pager.fetch(ctx, DirectionNext)
}

// PrevPage fetches the page before the current one. It returns
// (nil, false, nil) without a request when the cursor has no prev page.
func (p *Page[T]) PrevPage(ctx context.Context) ([]T, bool, error) {
	if p.released {
		return nil, false, ErrPageReleased
	}
	return p.pager.fetch(ctx, DirectionPrev)
}

// IntoOwned moves the page into an OwnedPage that holds a shared sender
// handle instead of the borrowed one. Items and cursor are copied as they
// are; p is released and refuses further fetches.
func (p *Page[T]) IntoOwned() (*OwnedPage[T], error) {
	if p.released {
		return nil, ErrPageReleased
	}
	p.released = true

	sender := p.pager.sender
	if sharer, ok := sender.(Sharer); ok {
		sender = sharer.Share()
	}

	owned := &OwnedPage[T]{
		InitialItems: p.InitialItems,
		pager:        p.pager,
	}
	owned.pager.sender = sender
	return owned, nil
}

// Items hands the page over to an iterator that yields InitialItems and
// then the items of every following page. p is released.
func (p *Page[T]) Items(ctx context.Context) *ItemsIterator[T] {
	if p.released {
		return failedIterator[T](ErrPageReleased)
	}
	p.released = true
	return newItemsIterator(ctx, p.InitialItems, &p.pager)
}

// All adapts Items to a range-over-func sequence. A fetch error is yielded
// once as the last element.
func (p *Page[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return p.Items(ctx).All()
}

// Collect drains every remaining page into one slice. On error the items
// gathered so far are returned with it.
func (p *Page[T]) Collect(ctx context.Context) ([]T, error) {
	return p.Items(ctx).Collect()
}

// OwnedPage is a Page decoupled from the call that created it, suitable for
// storing in long-lived structures such as a background poller.
type OwnedPage[T any] struct {
	InitialItems []T

	pager    pager[T]
	released bool
}

// Cursor returns the current cursor.
func (p *OwnedPage[T]) Cursor() Cursor {
	return p.pager.cursor
}

// NextPage fetches the page after the current one.
func (p *OwnedPage[T]) NextPage(ctx context.Context) ([]T, bool, error) {
	if p.released {
		return nil, false, ErrPageReleased
	}
	return p.pager.fetch(ctx, DirectionNext)
}

// PrevPage fetches the page before the current one.
func (p *OwnedPage[T]) PrevPage(ctx context.Context) ([]T, bool, error) {
	if p.released {
		return nil, false, ErrPageReleased
	}
	return p.pager.fetch(ctx, DirectionPrev)
}

// Items hands the page over to an iterator, see Page.Items.
func (p *OwnedPage[T]) Items(ctx context.Context) *ItemsIterator[T] {
	if p.released {
		return failedIterator[T](ErrPageReleased)
	}
	p.released = true
	return newItemsIterator(ctx, p.InitialItems, &p.pager)
}

// All adapts Items to a range-over-func sequence.
func (p *OwnedPage[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return p.Items(ctx).All()
}

// Collect drains every remaining page into one slice.
func (p *OwnedPage[T]) Collect(ctx context.Context) ([]T, error) {
	return p.Items(ctx).Collect()
}
