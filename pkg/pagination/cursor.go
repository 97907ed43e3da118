package pagination

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Direction selects which neighbouring page to fetch.
type Direction string

const (
	// DirectionNext follows rel="next" (older items on timelines).
	DirectionNext Direction = "next"

	// DirectionPrev follows rel="prev" (newer items on timelines).
	DirectionPrev Direction = "prev"
)

// FetchDescriptor is everything needed to request one page.
type FetchDescriptor struct {
	URL    *url.URL
	Method string
}

// NewRequest builds the request for the described page. The caller's
// sender is responsible for attaching credentials.
func (d *FetchDescriptor) NewRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create page request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Cursor points at the pages around the current one. A nil slot means the
// server reported no page in that direction; a Cursor with both slots nil is
// a valid terminal state.
type Cursor struct {
	Next *FetchDescriptor
	Prev *FetchDescriptor
}

// CursorFromLinks builds a GET cursor from parsed Link targets.
func CursorFromLinks(links Links) Cursor {
	var c Cursor
	if links.Next != nil {
		c.Next = &FetchDescriptor{URL: links.Next, Method: http.MethodGet}
	}
	if links.Prev != nil {
		c.Prev = &FetchDescriptor{URL: links.Prev, Method: http.MethodGet}
	}
	return c
}

// CursorFromResponse parses the Link header of resp into a Cursor.
func CursorFromResponse(resp *http.Response) (Cursor, error) {
	links, err := LinksFromResponse(resp)
	if err != nil {
		return Cursor{}, err
	}
	return CursorFromLinks(links), nil
}

// IsTerminal reports whether there is no page in either direction.
func (c Cursor) IsTerminal() bool {
	return c.Next == nil && c.Prev == nil
}

// take removes and returns the descriptor for dir.
func (c *Cursor) take(dir Direction) *FetchDescriptor {
	var d *FetchDescriptor
	switch dir {
	case DirectionNext:
		d, c.Next = c.Next, nil
	case DirectionPrev:
		d, c.Prev = c.Prev, nil
	}
	return d
}
