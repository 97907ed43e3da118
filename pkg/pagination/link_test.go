package pagination

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinkHeader(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantNext string
		wantPrev string
	}{
		{
			name:   "empty header",
			header: "",
		},
		{
			name:     "next and prev",
			header:   `<https://social.example/api/v1/timelines/home?max_id=109>; rel="next", <https://social.example/api/v1/timelines/home?min_id=120>; rel="prev"`,
			wantNext: "https://social.example/api/v1/timelines/home?max_id=109",
			wantPrev: "https://social.example/api/v1/timelines/home?min_id=120",
		},
		{
			name:     "next only",
			header:   `<https://social.example/api/v1/accounts/1/followers?max_id=7>; rel="next"`,
			wantNext: "https://social.example/api/v1/accounts/1/followers?max_id=7",
		},
		{
			name:   "unrelated relations only",
			header: `<https://social.example/page/1>; rel="first", <https://social.example/page/9>; rel="last"`,
		},
		{
			name:     "last match wins",
			header:   `<https://social.example/a>; rel="next", <https://social.example/b>; rel="next"`,
			wantNext: "https://social.example/b",
		},
		{
			name:     "space separated relation list",
			header:   `<https://social.example/both>; rel="prev next"`,
			wantNext: "https://social.example/both",
			wantPrev: "https://social.example/both",
		},
		{
			name:     "unquoted rel and previous alias",
			header:   `<https://social.example/n>; rel=next, <https://social.example/p>; rel=previous`,
			wantNext: "https://social.example/n",
			wantPrev: "https://social.example/p",
		},
		{
			name:     "comma inside url and quoted title",
			header:   `<https://social.example/x?ids=1,2>; rel="next"; title="a, b", <https://social.example/y>; rel="prev"`,
			wantNext: "https://social.example/x?ids=1,2",
			wantPrev: "https://social.example/y",
		},
		{
			name:     "broken target on ignored relation",
			header:   `<::not a url>; rel="last", <https://social.example/n>; rel="next"`,
			wantNext: "https://social.example/n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, err := ParseLinkHeader(tt.header)
			require.NoError(t, err)

			if tt.wantNext == "" {
				assert.Nil(t, links.Next)
			} else {
				require.NotNil(t, links.Next)
				assert.Equal(t, tt.wantNext, links.Next.String())
			}
			if tt.wantPrev == "" {
				assert.Nil(t, links.Prev)
			} else {
				require.NotNil(t, links.Prev)
				assert.Equal(t, tt.wantPrev, links.Prev.String())
			}
		})
	}
}

func TestParseLinkHeader_Errors(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantTarget string
		wantErr    error
	}{
		{
			name:       "malformed next url",
			header:     `<https://social.example/ok>; rel="prev", <http://[::1]:namedport>; rel="next"`,
			wantTarget: "http://[::1]:namedport",
		},
		{
			name:       "relative prev url",
			header:     `</api/v1/timelines/home?min_id=3>; rel="prev"`,
			wantTarget: "/api/v1/timelines/home?min_id=3",
			wantErr:    errNotAbsolute,
		},
		{
			name:    "missing angle brackets",
			header:  `https://social.example/n; rel="next"`,
			wantErr: errMissingTarget,
		},
		{
			name:    "unterminated target",
			header:  `<https://social.example/n; rel="next"`,
			wantErr: errUnterminatedTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, err := ParseLinkHeader(tt.header)
			require.Error(t, err)
			assert.Nil(t, links.Next)
			assert.Nil(t, links.Prev)

			var linkErr *LinkHeaderError
			require.True(t, errors.As(err, &linkErr))
			assert.Equal(t, tt.wantTarget, linkErr.Target)
			assert.Equal(t, tt.header, linkErr.Header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLinksFromResponse_MultipleHeaderLines(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Link", `<https://social.example/n>; rel="next"`)
	resp.Header.Add("Link", `<https://social.example/p>; rel="prev"`)

	links, err := LinksFromResponse(resp)
	require.NoError(t, err)
	require.NotNil(t, links.Next)
	require.NotNil(t, links.Prev)
	assert.Equal(t, "https://social.example/n", links.Next.String())
	assert.Equal(t, "https://social.example/p", links.Prev.String())
}

func TestLinksFromResponse_Absent(t *testing.T) {
	links, err := LinksFromResponse(&http.Response{Header: http.Header{}})
	require.NoError(t, err)
	assert.Equal(t, Links{}, links)
	assert.True(t, CursorFromLinks(links).IsTerminal())
}
