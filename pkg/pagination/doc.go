// Package pagination walks Link-header paginated API results.
//
// The server describes where the neighbouring pages live with an RFC 8288
// Link header:
//
//	Link: <https://example.social/api/v1/timelines/home?max_id=109>; rel="next",
//	      <https://example.social/api/v1/timelines/home?min_id=120>; rel="prev"
//
// A Page holds the first batch of items plus a Cursor built from that header.
// NextPage and PrevPage follow the cursor, replace it with the one from the
// new response and return the new batch. A nil slot in the cursor means the
// server has nothing more in that direction; asking for it returns
// (nil, false, nil) without touching the network.
//
// Example usage:
//
//	page, err := c.HomeTimeline(ctx, nil)
//	if err != nil {
//		return err
//	}
//	it := page.Items(ctx)
//	defer it.Close()
//	for it.Next() {
//		fmt.Println(it.Value().Account.Acct)
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
//
// Pages fetch strictly one after the other. There is no page cache and no
// parallel prefetching: page N+1 is requested only after every item of page N
// has been handed out. A Page is not safe for concurrent use.
package pagination
