package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var (
	errMissingTarget      = errors.New("link-value must start with '<'")
	errUnterminatedTarget = errors.New("unterminated '<' in link-value")
	errNotAbsolute        = errors.New("link target must be an absolute URL")
)

// Links holds the pagination targets found in a Link header.
type Links struct {
	Prev *url.URL
	Next *url.URL
}

// LinkHeaderError reports a Link header that could not be used. The whole
// header is rejected: a broken next/prev target is never silently dropped.
type LinkHeaderError struct {
	// Header is the full header value.
	Header string
	// Target is the offending URL, empty for syntax errors.
	Target string
	Err    error
}

// Error implements the error interface.
func (e *LinkHeaderError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("parse link header: target %q: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("parse link header: %v", e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LinkHeaderError) Unwrap() error {
	return e.Err
}

// LinksFromResponse parses every Link header line of resp. A response
// without a Link header yields empty Links and no error.
func LinksFromResponse(resp *http.Response) (Links, error) {
	values := resp.Header.Values("Link")
	if len(values) == 0 {
		return Links{}, nil
	}
	return ParseLinkHeader(strings.Join(values, ", "))
}

// ParseLinkHeader parses a Link header value such as
//
//	<https://a.example/x?max_id=1>; rel="next", <https://a.example/x?min_id=9>; rel="prev"
//
// A link-value whose rel contains "next" sets Next, one containing "prev"
// (or "previous") sets Prev; when several match, the last one wins. Other
// relations are skipped without validating their target. An empty header is
// the same as no header.
func ParseLinkHeader(header string) (Links, error) {
	var links Links

	rest := header
	for {
		rest = strings.TrimLeft(rest, " \t,")
		if rest == "" {
			return links, nil
		}
		if rest[0] != '<' {
			return Links{}, &LinkHeaderError{Header: header, Err: errMissingTarget}
		}
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return Links{}, &LinkHeaderError{Header: header, Err: errUnterminatedTarget}
		}
		target := strings.TrimSpace(rest[1:end])

		var params string
		params, rest = splitLinkValue(rest[end+1:])

		next, prev := relations(params)
		if !next && !prev {
			continue
		}

		u, err := parseTarget(target)
		if err != nil {
			return Links{}, &LinkHeaderError{Header: header, Target: target, Err: err}
		}
		if next {
			links.Next = u
		}
		if prev {
			cp := *u
			links.Prev = &cp
		}
	}
}

// splitLinkValue returns the parameter section of the current link-value
// and whatever follows the comma ending it. Commas inside quoted parameter
// values do not end the link-value.
func splitLinkValue(s string) (params, rest string) {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				return s[:i], s[i+1:]
			}
		}
	}
	return s, ""
}

// relations reports whether the rel parameter names next and/or prev.
// rel may list several space-separated relation types.
func relations(params string) (next, prev bool) {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"`)
		for _, rel := range strings.Fields(value) {
			switch strings.ToLower(rel) {
			case "next":
				next = true
			case "prev", "previous":
				prev = true
			}
		}
	}
	return next, prev
}

func parseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errNotAbsolute
	}
	return u, nil
}
