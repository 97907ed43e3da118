package pagination

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Sternrassler/fediverse-client/pkg/apijson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID string `json:"id"`
}

// countingSender sends through a plain http.Client, attaches a bearer
// token and counts requests.
type countingSender struct {
	client   *http.Client
	token    string
	requests atomic.Int32
	shared   atomic.Int32
}

func newCountingSender() *countingSender {
	return &countingSender{client: http.DefaultClient, token: "test-token"}
}

func (s *countingSender) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	s.requests.Add(1)
	req.Header.Set("Authorization", "Bearer "+s.token)
	return s.client.Do(req)
}

func (s *countingSender) Share() Sender {
	s.shared.Add(1)
	return s
}

type failingSender struct{ err error }

func (s failingSender) Send(context.Context, *http.Request) (*http.Response, error) {
	return nil, s.err
}

func newResponse(body, link string) *http.Response {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
	if link != "" {
		resp.Header.Set("Link", link)
	}
	return resp
}

func itemsJSON(ids ...string) string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `{"id":%q}`, id)
	}
	buf.WriteByte(']')
	return buf.String()
}

func ids(items []item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// pageServer serves a fixed chain of pages keyed by path.
type pageServer struct {
	*httptest.Server
	pages map[string]func(w http.ResponseWriter, r *http.Request)
	auth  atomic.Value
}

func newPageServer(t *testing.T) *pageServer {
	t.Helper()
	ps := &pageServer{pages: map[string]func(http.ResponseWriter, *http.Request){}}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.auth.Store(r.Header.Get("Authorization"))
		h, ok := ps.pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Record not found"}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pageServer) serve(path, body, link string) {
	ps.pages[path] = func(w http.ResponseWriter, r *http.Request) {
		if link != "" {
			w.Header().Set("Link", link)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(body))
	}
}

func TestNewPage_NoLinkHeader(t *testing.T) {
	sender := newCountingSender()

	page, err := NewPage[item](sender, newResponse(itemsJSON("a", "b"), ""))
	require.NoError(t, err)
	assert.True(t, page.Cursor().IsTerminal())

	items, ok, err := page.NextPage(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, items)

	items, ok, err = page.PrevPage(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, items)

	assert.Zero(t, sender.requests.Load(), "terminal cursor must not hit the network")
}

func TestNewPage_CursorMatchesHeader(t *testing.T) {
	next := "https://social.example/api/v1/timelines/home?max_id=100"
	prev := "https://social.example/api/v1/timelines/home?min_id=200"
	link := fmt.Sprintf(`<%s>; rel="next", <%s>; rel="prev"`, next, prev)

	page, err := NewPage[item](newCountingSender(), newResponse(itemsJSON("a"), link))
	require.NoError(t, err)

	cursor := page.Cursor()
	require.NotNil(t, cursor.Next)
	require.NotNil(t, cursor.Prev)
	assert.Equal(t, next, cursor.Next.URL.String())
	assert.Equal(t, prev, cursor.Prev.URL.String())
	assert.Equal(t, http.MethodGet, cursor.Next.Method)
	assert.Equal(t, http.MethodGet, cursor.Prev.Method)
}

func TestNewPage_Validation(t *testing.T) {
	_, err := NewPage[item](nil, newResponse("[]", ""))
	assert.ErrorIs(t, err, ErrNilSender)

	_, err = NewPage[item](newCountingSender(), nil)
	assert.ErrorIs(t, err, ErrNilResponse)

	_, err = NewPage[item](newCountingSender(), newResponse("[]", `</relative>; rel="next"`))
	var linkErr *LinkHeaderError
	assert.ErrorAs(t, err, &linkErr)
}

func TestNewPage_NilBody(t *testing.T) {
	noBody := func(link string) *http.Response {
		resp := newResponse("", link)
		resp.Body = nil
		return resp
	}

	assert.NotPanics(t, func() {
		_, err := NewPage[item](nil, noBody(""))
		assert.ErrorIs(t, err, ErrNilSender)
	})
	assert.NotPanics(t, func() {
		_, err := NewPage[item](newCountingSender(), noBody(`</relative>; rel="next"`))
		var linkErr *LinkHeaderError
		assert.ErrorAs(t, err, &linkErr)
	})
	assert.NotPanics(t, func() {
		_, err := NewPage[item](newCountingSender(), noBody(""))
		var decErr *apijson.DecodeError
		assert.ErrorAs(t, err, &decErr)
	})
}

func TestNewPage_APIErrorBody(t *testing.T) {
	resp := newResponse(`{"error":"The access token is invalid"}`, "")
	resp.StatusCode = http.StatusUnauthorized

	_, err := NewPage[item](newCountingSender(), resp)

	var apiErr *apijson.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "The access token is invalid", apiErr.Message)
}

func TestItems_SinglePage(t *testing.T) {
	sender := newCountingSender()
	page, err := NewPage[item](sender, newResponse(itemsJSON("a", "b"), ""))
	require.NoError(t, err)

	it := page.Items(context.Background())
	var got []string
	for it.Next() {
		got = append(got, it.Value().ID)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"a", "b"}, got)

	assert.False(t, it.Next(), "exhausted iterator must stay exhausted")
	assert.NoError(t, it.Err())
	assert.Zero(t, sender.requests.Load())
}

func TestItems_ChainedPages(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", itemsJSON("c"), "")

	sender := newCountingSender()
	page, err := NewPage[item](sender, newResponse(itemsJSON("a", "b"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	it := page.Items(context.Background())

	require.True(t, it.Next())
	assert.Equal(t, "a", it.Value().ID)
	require.True(t, it.Next())
	assert.Equal(t, "b", it.Value().ID)
	assert.Zero(t, sender.requests.Load(), "page 2 fetched before page 1 was drained")

	require.True(t, it.Next())
	assert.Equal(t, "c", it.Value().ID)
	assert.False(t, it.Next())
	require.NoError(t, it.Err())

	assert.Equal(t, int32(1), sender.requests.Load())
	assert.Equal(t, "Bearer test-token", ps.auth.Load())
}

func TestItems_SkipsEmptyPages(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", "[]", fmt.Sprintf(`<%s/p3>; rel="next"`, ps.URL))
	ps.serve("/p3", "[]", fmt.Sprintf(`<%s/p4>; rel="next"`, ps.URL))
	ps.serve("/p4", itemsJSON("d", "e"), "")

	sender := newCountingSender()
	page, err := NewPage[item](sender, newResponse(itemsJSON("a"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	got, err := page.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d", "e"}, ids(got))
	assert.Equal(t, int32(3), sender.requests.Load())
}

func TestItems_EmptyPageLoopIsBounded(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/loop", "[]", fmt.Sprintf(`<%s/loop>; rel="next"`, ps.URL))

	page, err := NewPage[item](newCountingSender(), newResponse("[]", fmt.Sprintf(`<%s/loop>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	it := page.Items(context.Background())
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrTooManyEmptyPages)
}

func TestNextPage_ReplacesBothSlots(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", itemsJSON("c", "d"), fmt.Sprintf(`<%s/p3>; rel="next", <%s/p1-newer>; rel="prev"`, ps.URL, ps.URL))

	page, err := NewPage[item](newCountingSender(), newResponse(itemsJSON("a", "b"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)
	assert.Nil(t, page.Cursor().Prev)

	items, ok, err := page.NextPage(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"c", "d"}, ids(items))

	cursor := page.Cursor()
	require.NotNil(t, cursor.Next)
	require.NotNil(t, cursor.Prev)
	assert.Equal(t, ps.URL+"/p3", cursor.Next.URL.String())
	assert.Equal(t, ps.URL+"/p1-newer", cursor.Prev.URL.String())
}

func TestNextPage_TerminalAfterLastPage(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", itemsJSON("c"), "")

	sender := newCountingSender()
	page, err := NewPage[item](sender, newResponse(itemsJSON("a"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	_, ok, err := page.NextPage(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = page.NextPage(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), sender.requests.Load())
}

func TestNextPage_FetchErrorMakesPageUnusable(t *testing.T) {
	boom := errors.New("connection reset")
	page, err := NewPage[item](failingSender{err: boom}, newResponse(itemsJSON("a"), `<https://social.example/p2>; rel="next"`))
	require.NoError(t, err)

	_, ok, err := page.NextPage(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)

	_, _, err = page.PrevPage(context.Background())
	assert.ErrorIs(t, err, ErrPageFailed)
	assert.ErrorIs(t, err, boom)
}

func TestNextPage_RefusesForeignHost(t *testing.T) {
	foreign := newPageServer(t)
	foreign.serve("/p2", itemsJSON("x"), "")

	home := newPageServer(t)
	home.serve("/p1", itemsJSON("a"), fmt.Sprintf(`<%s/p2>; rel="next"`, foreign.URL))

	sender := newCountingSender()
	req, err := http.NewRequest(http.MethodGet, home.URL+"/p1", nil)
	require.NoError(t, err)
	resp, err := sender.Send(context.Background(), req)
	require.NoError(t, err)

	page, err := NewPage[item](sender, resp)
	require.NoError(t, err)

	_, ok, err := page.NextPage(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrForeignHost)
	assert.Equal(t, int32(1), sender.requests.Load())
	assert.Nil(t, foreign.auth.Load(), "credentials must not reach the foreign host")
}

func TestNextPage_PinsHostOfFirstFetch(t *testing.T) {
	foreign := newPageServer(t)
	foreign.serve("/p3", itemsJSON("x"), "")

	home := newPageServer(t)
	home.serve("/p2", itemsJSON("b"), fmt.Sprintf(`<%s/p3>; rel="next"`, foreign.URL))

	page, err := NewPage[item](newCountingSender(), newResponse(itemsJSON("a"), fmt.Sprintf(`<%s/p2>; rel="next"`, home.URL)))
	require.NoError(t, err)

	items, ok, err := page.NextPage(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"b"}, ids(items))

	_, _, err = page.NextPage(context.Background())
	assert.ErrorIs(t, err, ErrForeignHost)
	assert.Nil(t, foreign.auth.Load())
}

func TestNextPage_DecodeErrorPropagates(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", `{"id":"not-a-list"}`, "")

	page, err := NewPage[item](newCountingSender(), newResponse(itemsJSON("a"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	it := page.Items(context.Background())
	require.True(t, it.Next())
	assert.False(t, it.Next())

	var decErr *apijson.DecodeError
	assert.ErrorAs(t, it.Err(), &decErr)
}

func TestNextPage_ServerErrorStatus(t *testing.T) {
	ps := newPageServer(t)

	page, err := NewPage[item](newCountingSender(), newResponse(itemsJSON("a"), fmt.Sprintf(`<%s/missing>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	_, _, err = page.NextPage(context.Background())
	var apiErr *apijson.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestIntoOwned(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", itemsJSON("c"), "")

	sender := newCountingSender()
	page, err := NewPage[item](sender, newResponse(itemsJSON("a", "b"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	owned, err := page.IntoOwned()
	require.NoError(t, err)
	assert.Equal(t, int32(1), sender.shared.Load())
	assert.Equal(t, []string{"a", "b"}, ids(owned.InitialItems))
	assert.Equal(t, page.Cursor(), owned.Cursor())

	_, _, err = page.NextPage(context.Background())
	assert.ErrorIs(t, err, ErrPageReleased)
	_, err = page.IntoOwned()
	assert.ErrorIs(t, err, ErrPageReleased)

	got, err := owned.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestItems_ReleasesPage(t *testing.T) {
	page, err := NewPage[item](newCountingSender(), newResponse(itemsJSON("a"), ""))
	require.NoError(t, err)

	_ = page.Items(context.Background())

	_, _, err = page.NextPage(context.Background())
	assert.ErrorIs(t, err, ErrPageReleased)

	second := page.Items(context.Background())
	assert.False(t, second.Next())
	assert.ErrorIs(t, second.Err(), ErrPageReleased)
}

func TestAll_RangeOverFunc(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", itemsJSON("c"), fmt.Sprintf(`<%s/missing>; rel="next"`, ps.URL))

	page, err := NewPage[item](newCountingSender(), newResponse(itemsJSON("a", "b"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	var got []string
	var iterErr error
	for it, err := range page.All(context.Background()) {
		if err != nil {
			iterErr = err
			break
		}
		got = append(got, it.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Error(t, iterErr)
}

func TestAll_EarlyBreakStopsFetching(t *testing.T) {
	ps := newPageServer(t)
	ps.serve("/p2", itemsJSON("c"), "")

	sender := newCountingSender()
	page, err := NewPage[item](sender, newResponse(itemsJSON("a", "b"), fmt.Sprintf(`<%s/p2>; rel="next"`, ps.URL)))
	require.NoError(t, err)

	for it := range page.All(context.Background()) {
		if it.ID == "a" {
			break
		}
	}
	assert.Zero(t, sender.requests.Load())
}
